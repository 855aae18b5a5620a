package memory

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndQuery(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Store("the flush loop batches mutations before writing", map[string]string{"worker_id": "w1"})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if id == "" {
		t.Fatal("Store returned empty id")
	}
	if _, err := s.Store("workers poll for eligible tasks by tag", nil); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	results, err := s.Query("flush mutations", 10, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != id {
		t.Errorf("result id = %s, want %s", results[0].ID, id)
	}
	if results[0].Metadata["worker_id"] != "w1" {
		t.Errorf("metadata = %v", results[0].Metadata)
	}
	if results[0].Score <= 0 || results[0].Score > 1 {
		t.Errorf("score = %f, want in (0, 1]", results[0].Score)
	}
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Store("", nil); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestQueryNoMatches(t *testing.T) {
	s := newTestStore(t)
	s.Store("completely unrelated text", nil)

	results, err := s.Query("zyzzyva", 10, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestQueryThresholdFilters(t *testing.T) {
	s := newTestStore(t)
	s.Store("dependency gating releases tasks in order", nil)

	results, err := s.Query("dependency", 10, 0.999)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("threshold did not filter: got %d results", len(results))
	}
}

func TestQueryLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		s.Store("task coordination note", nil)
	}

	results, err := s.Query("coordination", 2, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestReopenKeepsDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if _, err := s.Store("durable across reopen", nil); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	results, err := reopened.Query("durable", 10, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results after reopen, want 1", len(results))
	}
}
