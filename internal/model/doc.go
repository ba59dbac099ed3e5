// Package model defines the entity types shared by every other package:
// Memory, Embedding, Relation, Session and HistoryEvent, plus their closed
// enum fields and invariants.
package model
