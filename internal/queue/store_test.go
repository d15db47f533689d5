package queue

import (
	"testing"

	"supportdesk/pkg/types"
)

func entry(customerID, connID string) types.QueueEntry {
	return types.QueueEntry{CustomerID: customerID, ConnectionID: connID, DisplayName: customerID}
}

func TestStore_EnqueuePositions(t *testing.T) {
	s := NewStore("tech", "billing", "general")

	tests := []struct {
		category string
		entry    types.QueueEntry
		want     int
	}{
		{"tech", entry("a", "ca"), 1},
		{"tech", entry("b", "cb"), 2},
		{"billing", entry("c", "cc"), 1},
		{"tech", entry("d", "cd"), 3},
		{"hardware", entry("e", "ce"), 1},
	}

	for _, tt := range tests {
		if got := s.Enqueue(tt.category, tt.entry); got != tt.want {
			t.Errorf("Enqueue(%s, %s) = %d, want %d", tt.category, tt.entry.CustomerID, got, tt.want)
		}
	}

	if pos, ok := s.PositionOf("tech", "cd"); !ok || pos != 3 {
		t.Errorf("PositionOf(tech, cd) = %d, %v; want 3, true", pos, ok)
	}
	if _, ok := s.PositionOf("tech", "cc"); ok {
		t.Error("billing connection found in tech list")
	}
}

func TestStore_DefaultCategoriesInSnapshot(t *testing.T) {
	s := NewStore("tech", "billing", "general")
	snapshot := s.Snapshot()

	for _, category := range []string{"tech", "billing", "general"} {
		entries, ok := snapshot[category]
		if !ok {
			t.Errorf("default category %s missing from snapshot", category)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("category %s should be an empty list, got %v", category, entries)
		}
	}
}

func TestStore_DequeueByCustomerID(t *testing.T) {
	s := NewStore("billing")
	s.Enqueue("billing", entry("a", "ca"))
	s.Enqueue("billing", entry("b", "cb"))
	s.Enqueue("billing", entry("c", "cc"))

	got, err := s.DequeueByCustomerID("billing", "b")
	if err != nil {
		t.Fatalf("DequeueByCustomerID failed: %v", err)
	}
	if got.CustomerID != "b" || got.Category != "billing" {
		t.Errorf("unexpected entry: %+v", got)
	}

	if pos, _ := s.PositionOf("billing", "cc"); pos != 2 {
		t.Errorf("position after removal = %d, want 2", pos)
	}

	if _, err := s.DequeueByCustomerID("billing", "b"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound on second dequeue, got %v", err)
	}
	if _, err := s.DequeueByCustomerID("unknown", "a"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for unknown category, got %v", err)
	}
}

func TestStore_RemoveByConnectionIDAcrossCategories(t *testing.T) {
	s := NewStore("tech", "billing", "general")
	s.Enqueue("tech", entry("x", "shared"))
	s.Enqueue("tech", entry("a", "ca"))
	s.Enqueue("general", entry("y", "shared"))

	removed := s.RemoveByConnectionID("shared")
	if len(removed) != 2 {
		t.Fatalf("Expected 2 removals, got %d", len(removed))
	}

	snapshot := s.Snapshot()
	if len(snapshot["tech"]) != 1 || snapshot["tech"][0].CustomerID != "a" {
		t.Errorf("tech list wrong after removal: %+v", snapshot["tech"])
	}
	if len(snapshot["general"]) != 0 {
		t.Errorf("general list should be empty, got %+v", snapshot["general"])
	}

	if again := s.RemoveByConnectionID("shared"); len(again) != 0 {
		t.Errorf("second removal should find nothing, got %d", len(again))
	}
}

func TestStore_FindAndContains(t *testing.T) {
	s := NewStore("tech")
	s.Enqueue("tech", entry("a", "ca"))

	if _, ok := s.Find("tech", "a"); !ok {
		t.Error("Find missed queued customer")
	}
	if s.Len("tech") != 1 {
		t.Error("Find must not remove the entry")
	}
	if category, ok := s.Contains("a"); !ok || category != "tech" {
		t.Errorf("Contains(a) = %q, %v; want tech, true", category, ok)
	}
	if _, ok := s.Contains("zzz"); ok {
		t.Error("Contains reported unknown customer")
	}
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := NewStore("tech")
	s.Enqueue("tech", entry("a", "ca"))

	snapshot := s.Snapshot()
	snapshot["tech"][0].DisplayName = "mutated"
	snapshot["tech"] = append(snapshot["tech"], entry("b", "cb"))

	fresh := s.Snapshot()
	if fresh["tech"][0].DisplayName != "a" || len(fresh["tech"]) != 1 {
		t.Errorf("snapshot mutation leaked into store: %+v", fresh["tech"])
	}
}
