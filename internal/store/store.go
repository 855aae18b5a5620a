// Package store provides the durable, versioned coordination document.
//
// All mutations are funneled through a single pending queue and applied by a
// periodic flush, so concurrent callers never race on the file itself. Reads
// always observe the last committed snapshot: a caller does not see its own
// mutation until the next flush lands ("eventually visible, never torn").
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opsforge/foreman/pkg/models"
)

// ErrCorruptState indicates that neither the primary document nor its backup
// could be parsed on startup.
var ErrCorruptState = errors.New("coordination state corrupt")

// DefaultFlushInterval is how often pending mutations are applied and persisted.
const DefaultFlushInterval = 2 * time.Second

// DefaultMaxFlushFailures is how many consecutive flush failures are tolerated
// before the store reports a fatal persistence error.
const DefaultMaxFlushFailures = 5

// mutation is one queued commit call: a flat map of dotted paths to values.
// A nil value deletes the path.
type mutation struct {
	paths map[string]any
	actor string
}

// Store owns the coordination document. Callers never hold a mutable reference
// to the document; they submit path mutations and read committed snapshots.
type Store struct {
	path    string
	bakPath string

	flushInterval    time.Duration
	maxFlushFailures int
	logf             func(format string, args ...any)
	onFatal          func(err error)

	mu       sync.Mutex
	doc      map[string]any
	pending  []mutation
	failures int
}

// Option configures a Store.
type Option func(*Store)

// WithFlushInterval sets the interval between automatic flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithMaxFlushFailures sets the consecutive-failure ceiling after which a
// flush error is treated as fatal.
func WithMaxFlushFailures(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxFlushFailures = n
		}
	}
}

// WithLogf sets the warning/debug log function.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Store) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// WithFatalHandler sets the callback invoked when the flush retry ceiling is
// exhausted. The default handler only logs.
func WithFatalHandler(fn func(err error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.onFatal = fn
		}
	}
}

// Open loads the coordination document at path, creating an empty one if the
// file does not exist. If the primary document fails to parse, the
// one-generation backup is tried; if both fail, Open returns ErrCorruptState
// rather than silently starting from empty state.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s := &Store{
		path:             path,
		bakPath:          path + ".bak",
		flushInterval:    DefaultFlushInterval,
		maxFlushFailures: DefaultMaxFlushFailures,
		logf:             func(string, ...any) {},
	}
	s.onFatal = func(err error) {
		s.logf("[store] FATAL: %v", err)
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := loadDocument(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.doc = emptyDocument()
			return s, nil
		}
		// Primary unreadable or torn: fall back to the previous generation.
		bak, bakErr := loadDocument(s.bakPath)
		if bakErr != nil {
			return nil, fmt.Errorf("%w: primary: %v, backup: %v", ErrCorruptState, err, bakErr)
		}
		s.logf("[store] primary document unreadable (%v), recovered from backup", err)
		s.doc = bak
		return s, nil
	}
	s.doc = doc
	return s, nil
}

// loadDocument reads and parses a document file.
func loadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		doc = emptyDocument()
	}
	return doc, nil
}

// emptyDocument returns a fresh version-zero document.
func emptyDocument() map[string]any {
	return map[string]any{
		"version": int64(0),
		"tasks":   map[string]any{},
		"agents":  map[string]any{},
	}
}

// Commit queues a set of path mutations for the next flush. It never blocks on
// I/O. Values must be JSON-serializable; a nil value deletes the path. The
// mutation becomes visible to readers only after the flush that applies it.
func (s *Store) Commit(paths map[string]any, actor string) error {
	if len(paths) == 0 {
		return nil
	}

	// Normalize values through JSON now so later caller-side mutation of the
	// submitted objects cannot leak into the flush.
	normalized := make(map[string]any, len(paths))
	for p, v := range paths {
		if v == nil {
			normalized[p] = nil
			continue
		}
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("commit path %s: %w", p, err)
		}
		normalized[p] = nv
	}

	s.mu.Lock()
	s.pending = append(s.pending, mutation{paths: normalized, actor: actor})
	s.mu.Unlock()
	return nil
}

// normalize round-trips a value through JSON into plain maps/slices/scalars.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Flush applies every pending mutation in submission order, bumps the version
// exactly once if anything was applied, and persists the result atomically.
// A no-op flush (empty queue) does not bump the version and does not write.
//
// On persistence failure the drained mutations are re-queued for the next
// cycle; the error is surfaced as a warning until the consecutive-failure
// ceiling is reached, at which point the fatal handler fires.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	s.pending = nil

	next := deepCopy(s.doc)
	for _, m := range batch {
		for p, v := range m.paths {
			applyPath(next, p, v)
		}
	}
	next["version"] = docVersion(next) + 1
	next["last_updated"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.persist(next); err != nil {
		// Durability is retried, not abandoned: put the batch back at the
		// front of the queue so submission order is preserved.
		s.pending = append(batch, s.pending...)
		s.failures++
		s.logf("[store] flush failed (attempt %d/%d), mutations re-queued: %v",
			s.failures, s.maxFlushFailures, err)
		if s.failures >= s.maxFlushFailures {
			fatal := fmt.Errorf("flush retries exhausted after %d attempts: %w", s.failures, err)
			s.onFatal(fatal)
			return fatal
		}
		return nil
	}

	s.failures = 0
	s.doc = next
	return nil
}

// persist writes the document via write-replace-rename so a crash mid-write
// never leaves a torn file. The previous durable copy is retained as a
// one-generation backup before the rename.
func (s *Store) persist(doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.bakPath); err != nil {
			return fmt.Errorf("rotate backup: %w", err)
		}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Run drives periodic flushes until the context is cancelled, then performs a
// final flush so queued mutations are not lost on shutdown.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Flush()
		case <-ctx.Done():
			_ = s.Flush()
			return
		}
	}
}

// Read returns the last committed coordination state as a typed snapshot.
// It never blocks on the flush queue and never exposes pending mutations.
func (s *Store) Read() (*models.CoordinationState, error) {
	s.mu.Lock()
	data, err := json.Marshal(s.doc)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("snapshot state: %w", err)
	}

	state := models.NewCoordinationState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.Tasks == nil {
		state.Tasks = make(map[string]*models.Task)
	}
	if state.Agents == nil {
		state.Agents = make(map[string]*models.AgentRecord)
	}
	return state, nil
}

// ReadPath returns the committed value at a dotted path, or false if the path
// does not exist. The returned value is a copy.
func (s *Store) ReadPath(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := any(s.doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return deepCopyValue(cur), true
}

// Version returns the version of the last committed document.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return docVersion(s.doc)
}

// PendingCount returns the number of queued, not-yet-flushed commits.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Path returns the location of the durable document.
func (s *Store) Path() string {
	return s.path
}

// BackupPath returns the location of the one-generation backup.
func (s *Store) BackupPath() string {
	return s.bakPath
}

// docVersion extracts the version field, tolerating the float64 that JSON
// decoding produces.
func docVersion(doc map[string]any) int64 {
	switch v := doc["version"].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// applyPath sets or deletes the value at a dotted path, creating intermediate
// objects as needed. Mutations that traverse a non-object are dropped: the
// document shape wins over a malformed path.
func applyPath(doc map[string]any, path string, value any) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			if value == nil {
				return
			}
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}

	leaf := segs[len(segs)-1]
	if value == nil {
		delete(cur, leaf)
		return
	}
	cur[leaf] = value
}

// deepCopy copies a JSON-shaped document.
func deepCopy(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

// deepCopyValue copies a JSON-shaped value.
func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return deepCopy(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
