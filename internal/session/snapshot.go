package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SnapshotRetention bounds how many numbered snapshots a single session
// keeps before the oldest is pruned, mirroring SessionRetentionDays' age
// cutoff but by count instead of calendar time — snapshots are taken far
// more often than full sessions are saved.
const SnapshotRetention = 20

// Snapshot is a point-in-time copy of a session's message history, numbered
// monotonically within the session so a resume can offer "go back N steps"
// without needing timestamps to order them.
type Snapshot struct {
	SessionID string    `json:"sessionId"`
	Number    int       `json:"number"`
	TakenAt   time.Time `json:"takenAt"`
	Session   Session   `json:"session"`
}

func (s *Store) snapshotDir(sessionID string) string {
	return filepath.Join(s.baseDir, "snapshots", sessionID)
}

// Snapshot writes a numbered copy of sess to the snapshot directory,
// pruning the oldest entries beyond SnapshotRetention.
func (s *Store) Snapshot(sess *Session) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.snapshotDir(sess.Metadata.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}
	// Continue after the highest existing number: pruning removes the oldest
	// files, so the file count alone would repeat numbers.
	number := len(entries) + 1
	if n := len(entries); n > 0 {
		var last int
		if _, err := fmt.Sscanf(entries[n-1].Name(), "%d.json", &last); err == nil {
			number = last + 1
		}
	}

	snap := &Snapshot{
		SessionID: sess.Metadata.ID,
		Number:    number,
		TakenAt:   time.Now(),
		Session:   *sess,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%06d.json", number))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.pruneSnapshots(dir)
	return snap, nil
}

// ListSnapshots returns every snapshot taken for sessionID, oldest first.
func (s *Store) ListSnapshots(sessionID string) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.snapshotDir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snaps []*Snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		snaps = append(snaps, &snap)
	}
	return snaps, nil
}

// pruneSnapshots removes the oldest numbered snapshot files beyond
// SnapshotRetention. Caller must hold s.mu.
func (s *Store) pruneSnapshots(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) <= SnapshotRetention {
		return
	}
	excess := len(entries) - SnapshotRetention
	for i := 0; i < excess; i++ {
		_ = os.Remove(filepath.Join(dir, entries[i].Name()))
	}
}

// Fork duplicates an existing session under a new ID, so experimentation
// in the fork never mutates the original's saved history. The new
// session's Metadata.ID is a fresh UUID rather than a derivative of the
// source ID, matching how google/uuid is used elsewhere in this module for
// identifiers that must never collide across concurrent callers.
func (s *Store) Fork(sourceID string) (*Session, error) {
	src, err := s.Load(sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source session: %w", err)
	}

	forked := *src
	forked.Metadata.ID = uuid.New().String()
	forked.Metadata.Title = src.Metadata.Title + " (fork)"
	forked.Metadata.CreatedAt = time.Now()
	forked.Metadata.UpdatedAt = time.Now()
	forked.Messages = append([]StoredMessage(nil), src.Messages...)

	if err := s.Save(&forked); err != nil {
		return nil, fmt.Errorf("failed to save forked session: %w", err)
	}
	return &forked, nil
}

// --- Append-only archive ---

// ArchiveEntry is one line of an Archive file: a single message appended
// as soon as it's produced, so a crash mid-turn loses at most the entry
// currently being written rather than the whole session (unlike Store.Save,
// which rewrites the entire session file on every call).
type ArchiveEntry struct {
	Index   int           `json:"index"`
	AddedAt time.Time     `json:"addedAt"`
	Message StoredMessage `json:"message"`
}

// Archive appends StoredMessages to a line-delimited JSON file as they
// happen, independent of Store's whole-file Save/Load, intended for
// long-running sessions where rewriting the full JSON file on every
// message would be wasteful.
type Archive struct {
	mu    sync.Mutex
	file  *os.File
	count int
}

// OpenArchive opens (creating if necessary) the append-only archive for
// sessionID under dir, picking up the existing entry count so Index
// continues where a prior process left off.
func OpenArchive(dir, sessionID string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")

	count, err := countLines(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return &Archive{file: f, count: count}, nil
}

// Append writes msg as the next archive entry.
func (a *Archive) Append(msg StoredMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := ArchiveEntry{Index: a.count, AddedAt: time.Now(), Message: msg}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal archive entry: %w", err)
	}
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append archive entry: %w", err)
	}
	a.count++
	return nil
}

// Close closes the underlying file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open archive for counting: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}
