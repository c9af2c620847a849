// Package store persists scored relationships as a node/edge graph in
// SQLite. Nodes are sentences keyed by document and text prefix, the same
// identity the graph visualization uses; edges point from cause to effect.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CanopyHQ/causalgraph/internal/relation"
)

// NodeKeyLen is the number of characters of sentence text in a node key.
const NodeKeyLen = 100

// Node is one sentence in the graph.
type Node struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// Edge is one stored cause→effect relationship.
type Edge struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	SourceID       string    `json:"source_id"`
	TargetID       string    `json:"target_id"`
	RuleScore      float64   `json:"rule_score"`
	MLScore        *float64  `json:"ml_score,omitempty"`
	CombinedScore  *float64  `json:"combined_score,omitempty"`
	SharedEntities []string  `json:"shared_entities"`
	CreatedAt      time.Time `json:"created_at"`
}

// Run records one extraction.
type Run struct {
	ID            string
	Profile       string
	Reranker      string
	MinConfidence float64
	Documents     int
	CreatedAt     time.Time
}

// Store is a SQLite-backed relationship graph.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		reranker TEXT NOT NULL,
		min_confidence REAL NOT NULL,
		documents INTEGER NOT NULL,
		relationships INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		text_key TEXT NOT NULL,
		text TEXT NOT NULL,
		UNIQUE (document_id, text_key)
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_document ON nodes(document_id);

	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		rule_score REAL NOT NULL,
		ml_score REAL,
		combined_score REAL,
		shared_entities TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
		FOREIGN KEY (source_id) REFERENCES nodes(id),
		FOREIGN KEY (target_id) REFERENCES nodes(id)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_run ON edges(run_id);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// textKey is the first NodeKeyLen characters of text.
func textKey(text string) string {
	i := 0
	for pos := range text {
		if i == NodeKeyLen {
			return text[:pos]
		}
		i++
	}
	return text
}

// NodeID derives the stable node id of a sentence.
func NodeID(documentID, text string) string {
	h := sha256.Sum256([]byte(documentID + "\x00" + textKey(text)))
	return hex.EncodeToString(h[:])[:16]
}

// SaveRun stores run and its relationships in one transaction. Nothing is
// written if any insert fails.
func (s *Store) SaveRun(ctx context.Context, run Run, rs []relation.Scored) (err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, profile, reranker, min_confidence, documents, relationships, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Profile, run.Reranker, run.MinConfidence, run.Documents, len(rs), run.CreatedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO nodes (id, document_id, text_key, text) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (id, run_id, source_id, target_id, rule_score, ml_score, combined_score, shared_entities, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, r := range rs {
		src := NodeID(r.CauseDocumentID, r.CauseText)
		dst := NodeID(r.EffectDocumentID, r.EffectText)
		if _, err = nodeStmt.ExecContext(ctx, src, r.CauseDocumentID, textKey(r.CauseText), r.CauseText); err != nil {
			return fmt.Errorf("insert node: %w", err)
		}
		if _, err = nodeStmt.ExecContext(ctx, dst, r.EffectDocumentID, textKey(r.EffectText), r.EffectText); err != nil {
			return fmt.Errorf("insert node: %w", err)
		}

		shared := r.SharedEntities
		if shared == nil {
			shared = []string{}
		}
		entitiesJSON, _ := json.Marshal(shared)
		if _, err = edgeStmt.ExecContext(ctx, uuid.NewString(), run.ID, src, dst,
			r.RuleScore, nullFloat(r.MLScore), nullFloat(r.CombinedScore), string(entitiesJSON), run.CreatedAt); err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// Edges returns the edges of a run, strongest first. An empty runID returns
// the edges of every run.
func (s *Store) Edges(ctx context.Context, runID string) ([]Edge, error) {
	sqlQuery := `SELECT id, run_id, source_id, target_id, rule_score, ml_score, combined_score, shared_entities, created_at FROM edges`
	var args []interface{}
	if runID != "" {
		sqlQuery += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	sqlQuery += ` ORDER BY COALESCE(combined_score, rule_score) DESC, id`
	return s.queryEdges(ctx, sqlQuery, args...)
}

// EffectsOf returns the edges leaving the node with the given id.
func (s *Store) EffectsOf(ctx context.Context, nodeID string) ([]Edge, error) {
	return s.queryEdges(ctx, `
		SELECT id, run_id, source_id, target_id, rule_score, ml_score, combined_score, shared_entities, created_at
		FROM edges WHERE source_id = ? ORDER BY COALESCE(combined_score, rule_score) DESC, id
	`, nodeID)
}

// CausesOf returns the edges entering the node with the given id.
func (s *Store) CausesOf(ctx context.Context, nodeID string) ([]Edge, error) {
	return s.queryEdges(ctx, `
		SELECT id, run_id, source_id, target_id, rule_score, ml_score, combined_score, shared_entities, created_at
		FROM edges WHERE target_id = ? ORDER BY COALESCE(combined_score, rule_score) DESC, id
	`, nodeID)
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...interface{}) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var ml, combined sql.NullFloat64
		var entitiesJSON string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SourceID, &e.TargetID, &e.RuleScore, &ml, &combined, &entitiesJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.MLScore = floatPtr(ml)
		e.CombinedScore = floatPtr(combined)
		if err := json.Unmarshal([]byte(entitiesJSON), &e.SharedEntities); err != nil {
			return nil, fmt.Errorf("edge %s: decode shared entities: %w", e.ID, err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Node returns the node with the given id.
func (s *Store) Node(ctx context.Context, id string) (*Node, error) {
	var n Node
	err := s.db.QueryRowContext(ctx, `SELECT id, document_id, text FROM nodes WHERE id = ?`, id).
		Scan(&n.ID, &n.DocumentID, &n.Text)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Stats counts stored runs, nodes and edges.
func (s *Store) Stats(ctx context.Context) (runs, nodes, edges int, err error) {
	for _, q := range []struct {
		table string
		dst   *int
	}{{"runs", &runs}, {"nodes", &nodes}, {"edges", &edges}} {
		if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+q.table).Scan(q.dst); err != nil {
			return 0, 0, 0, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return runs, nodes, edges, nil
}

// IsDatabasePath reports whether path names a SQLite sink.
func IsDatabasePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
