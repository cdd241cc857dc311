package session

import "testing"

func TestNewID(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if len(id) != 32 {
		t.Errorf("len(id) = %d, want 32 hex chars", len(id))
	}

	other, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if id == other {
		t.Error("two generated IDs are equal")
	}
}
