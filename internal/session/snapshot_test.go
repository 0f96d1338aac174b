package session

import (
	"os"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "session-snapshot-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return &Store{baseDir: dir}
}

func TestStore_SnapshotNumbersMonotonically(t *testing.T) {
	store := newTestStore(t)
	sess := &Session{Metadata: SessionMetadata{ID: "sess-1"}}

	first, err := store.Snapshot(sess)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	second, err := store.Snapshot(sess)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if first.Number != 1 || second.Number != 2 {
		t.Errorf("expected numbers 1,2, got %d,%d", first.Number, second.Number)
	}
}

func TestStore_ListSnapshotsReturnsAll(t *testing.T) {
	store := newTestStore(t)
	sess := &Session{Metadata: SessionMetadata{ID: "sess-1"}}
	store.Snapshot(sess)
	store.Snapshot(sess)
	store.Snapshot(sess)

	snaps, err := store.ListSnapshots("sess-1")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Errorf("expected 3 snapshots, got %d", len(snaps))
	}
}

func TestStore_SnapshotPrunesBeyondRetention(t *testing.T) {
	store := newTestStore(t)
	sess := &Session{Metadata: SessionMetadata{ID: "sess-1"}}

	for i := 0; i < SnapshotRetention+5; i++ {
		if _, err := store.Snapshot(sess); err != nil {
			t.Fatalf("Snapshot %d: %v", i, err)
		}
	}

	snaps, err := store.ListSnapshots("sess-1")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != SnapshotRetention {
		t.Errorf("expected pruning to cap at %d snapshots, got %d", SnapshotRetention, len(snaps))
	}
}

func TestStore_ForkCreatesIndependentCopy(t *testing.T) {
	store := newTestStore(t)
	original := &Session{
		Metadata: SessionMetadata{ID: "sess-orig", Title: "Original"},
		Messages: []StoredMessage{{Role: "user", Content: "hello"}},
	}
	if err := store.Save(original); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fork, err := store.Fork("sess-orig")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if fork.Metadata.ID == original.Metadata.ID {
		t.Error("expected fork to get a new ID")
	}

	fork.Messages = append(fork.Messages, StoredMessage{Role: "assistant", Content: "forked reply"})
	if err := store.Save(fork); err != nil {
		t.Fatalf("Save fork: %v", err)
	}

	reloaded, err := store.Load("sess-orig")
	if err != nil {
		t.Fatalf("Load original: %v", err)
	}
	if len(reloaded.Messages) != 1 {
		t.Errorf("expected original session untouched by fork edits, got %d messages", len(reloaded.Messages))
	}
}

func TestArchive_AppendsAndCountsAcrossReopens(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenArchive(dir, "sess-archive")
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	if err := a.Append(StoredMessage{Role: "user", Content: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append(StoredMessage{Role: "assistant", Content: "second"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenArchive(dir, "sess-archive")
	if err != nil {
		t.Fatalf("reopen OpenArchive: %v", err)
	}
	defer reopened.Close()

	if reopened.count != 2 {
		t.Errorf("expected reopened archive to pick up 2 prior entries, got %d", reopened.count)
	}
	if err := reopened.Append(StoredMessage{Role: "user", Content: "third"}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if reopened.count != 3 {
		t.Errorf("expected count 3 after append, got %d", reopened.count)
	}
}
