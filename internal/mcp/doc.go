// Package mcp implements the RPC tool surface: JSON-RPC 2.0 over stdio,
// exposing the 15 save/search/graph/maintenance tools over the shared
// engine.Engine.
package mcp
