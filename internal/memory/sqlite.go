package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store with an SQLite full-text index.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewSQLiteStore opens (or creates) the memory database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: conn, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the document table and its full-text index.
func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			content,
			content='documents',
			content_rowid='rowid'
		);

		CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, content) VALUES (new.rowid, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, content)
			VALUES ('delete', old.rowid, old.content);
		END;
	`)
	if err != nil {
		return fmt.Errorf("create memory schema: %w", err)
	}
	return nil
}

// Store saves content with metadata and returns the new document id.
func (s *SQLiteStore) Store(content string, metadata map[string]string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("content is required")
	}

	var meta sql.NullString
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}

	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO documents (id, content, metadata, created_at)
		VALUES (?, ?, ?, ?)
	`, id, content, meta, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	return id, nil
}

// Query returns the best matches for the text, ranked by bm25 and normalized
// to a (0, 1] score. Results below threshold are dropped.
func (s *SQLiteStore) Query(text string, maxResults int, threshold float64) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT d.id, d.content, d.metadata, bm25(documents_fts) AS rank
		FROM documents d
		JOIN documents_fts fts ON d.rowid = fts.rowid
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, text, maxResults)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var meta sql.NullString
		var rank float64
		if err := rows.Scan(&r.ID, &r.Content, &meta, &rank); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		r.Score = normalizeRank(rank)
		if r.Score < threshold {
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// normalizeRank maps a bm25 rank (more negative is better) to (0, 1].
func normalizeRank(rank float64) float64 {
	relevance := -rank
	if relevance <= 0 {
		return 0
	}
	return relevance / (1 + relevance)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Verify SQLiteStore implements Store at compile time.
var _ Store = (*SQLiteStore)(nil)
