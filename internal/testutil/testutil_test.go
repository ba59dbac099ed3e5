package testutil

import "testing"

func TestNewDB(t *testing.T) {
	db := NewDB(t, Dims)

	report, err := db.IntegrityCheck()
	if err != nil {
		t.Fatalf("IntegrityCheck failed on a fresh store: %v", err)
	}
	if !report.Clean() {
		t.Errorf("expected a clean fresh store, got %+v", report)
	}
}

func TestNewMemory(t *testing.T) {
	m := NewMemory("a title")
	if m.ID == "" {
		t.Error("expected a non-empty id")
	}
	if m.Status != "active" {
		t.Errorf("expected default status active, got %s", m.Status)
	}
	if m.Privacy != "private" {
		t.Errorf("expected default privacy private, got %s", m.Privacy)
	}
}

func TestVectorIsDeterministic(t *testing.T) {
	a := Vector(1.0)
	b := Vector(1.0)
	if len(a) != Dims {
		t.Fatalf("expected %d dims, got %d", Dims, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic vector, differed at %d: %v vs %v", i, a[i], b[i])
		}
	}
}
