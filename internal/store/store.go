package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codemind/codegraph/internal/community"
	"github.com/codemind/codegraph/internal/graph"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store persists assembled graphs to SQLite, one run per row in runs.
type Store struct {
	db *sql.DB
	q  Querier
}

// RunRecord mirrors the run report for persistence.
type RunRecord struct {
	ID                string
	Root              string
	StartedAt         time.Time
	FinishedAt        time.Time
	Files             int
	UnparsedFiles     int
	FallbackFiles     int
	OrphanedEdges     int
	ExternalEdges     int
	UnresolvedRefs    int
	FailedQueries     int
	DegradedLanguages []string
	CycleBrokenNodes  int
	FailedGenerations int
	Partial           bool
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db}
	s.q = db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory database for tests.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	root TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	files INTEGER NOT NULL,
	unparsed_files INTEGER NOT NULL,
	fallback_files INTEGER NOT NULL,
	orphaned_edges INTEGER NOT NULL,
	external_edges INTEGER NOT NULL,
	unresolved_refs INTEGER NOT NULL,
	failed_queries INTEGER NOT NULL,
	degraded_languages TEXT NOT NULL,
	cycle_broken_nodes INTEGER NOT NULL,
	failed_generations INTEGER NOT NULL,
	partial INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	language TEXT NOT NULL,
	signature TEXT NOT NULL,
	docstring TEXT NOT NULL,
	external INTEGER NOT NULL,
	community_id INTEGER,
	summary TEXT NOT NULL,
	cycle_broken INTEGER NOT NULL,
	summary_failed INTEGER NOT NULL,
	PRIMARY KEY (run_id, id)
);
CREATE TABLE IF NOT EXISTS node_origins (
	run_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	unit_id TEXT NOT NULL,
	path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	approximate INTEGER NOT NULL,
	FOREIGN KEY (run_id, node_id) REFERENCES nodes(run_id, id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS edges (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	from_id TEXT NOT NULL,
	to_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	resolved INTEGER NOT NULL,
	line INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS summaries (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	level TEXT NOT NULL,
	ref TEXT NOT NULL,
	text TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_qn ON nodes(run_id, qualified_name);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(run_id, from_id);
CREATE INDEX IF NOT EXISTS idx_origins_node ON node_origins(run_id, node_id);
`
	_, err := s.q.Exec(schema)
	return err
}

// WithTransaction runs fn in one transaction. The callback's Store routes
// every statement through the transaction; the receiver is untouched.
func (s *Store) WithTransaction(fn func(tx *Store) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveRun writes one run's report, graph, partition, and summaries
// atomically.
func (s *Store) SaveRun(run *RunRecord, g *graph.Graph, comms *community.Result, communitySummaries map[int]string, global string) error {
	return s.WithTransaction(func(tx *Store) error {
		if err := tx.insertRun(run); err != nil {
			return err
		}
		if g != nil {
			if err := tx.insertGraph(run.ID, g, comms); err != nil {
				return err
			}
		}
		return tx.insertSummaries(run.ID, communitySummaries, global)
	})
}

func (s *Store) insertRun(run *RunRecord) error {
	_, err := s.q.Exec(`INSERT INTO runs
		(id, root, started_at, finished_at, files, unparsed_files, fallback_files,
		 orphaned_edges, external_edges, unresolved_refs, failed_queries,
		 degraded_languages, cycle_broken_nodes, failed_generations, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Root, run.StartedAt, run.FinishedAt, run.Files,
		run.UnparsedFiles, run.FallbackFiles, run.OrphanedEdges,
		run.ExternalEdges, run.UnresolvedRefs, run.FailedQueries,
		strings.Join(run.DegradedLanguages, ","),
		run.CycleBrokenNodes, run.FailedGenerations, boolInt(run.Partial))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) insertGraph(runID string, g *graph.Graph, comms *community.Result) error {
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		var commID any
		if comms != nil {
			if c, ok := comms.Assignment[id]; ok {
				commID = c
			}
		}
		_, err := s.q.Exec(`INSERT INTO nodes
			(run_id, id, kind, name, qualified_name, language, signature,
			 docstring, external, community_id, summary, cycle_broken, summary_failed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, n.ID, string(n.Kind), n.Name, n.QualifiedName,
			string(n.Language), n.Signature, n.Docstring, boolInt(n.External),
			commID, n.Summary, boolInt(n.CycleBroken), boolInt(n.SummaryFailed))
		if err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}

		for _, o := range n.Origins {
			_, err := s.q.Exec(`INSERT INTO node_origins
				(run_id, node_id, unit_id, path, start_line, end_line, approximate)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, n.ID, o.UnitID, o.Path, o.StartLine, o.EndLine, boolInt(o.Approximate))
			if err != nil {
				return fmt.Errorf("insert origin %s: %w", o.UnitID, err)
			}
		}
	}

	for _, e := range g.Edges {
		_, err := s.q.Exec(`INSERT INTO edges
			(run_id, from_id, to_id, kind, resolved, line)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, e.From, e.To, string(e.Kind), boolInt(e.Resolved), e.Line)
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}
	return nil
}

func (s *Store) insertSummaries(runID string, communitySummaries map[int]string, global string) error {
	for id, text := range communitySummaries {
		if text == "" {
			continue
		}
		_, err := s.q.Exec(`INSERT INTO summaries (run_id, level, ref, text) VALUES (?, 'community', ?, ?)`,
			runID, fmt.Sprintf("%d", id), text)
		if err != nil {
			return fmt.Errorf("insert community summary: %w", err)
		}
	}
	if global != "" {
		_, err := s.q.Exec(`INSERT INTO summaries (run_id, level, ref, text) VALUES (?, 'global', '', ?)`,
			runID, global)
		if err != nil {
			return fmt.Errorf("insert global summary: %w", err)
		}
	}
	return nil
}

// CountNodes returns how many nodes a run stored. Used by tests and the CLI
// status output.
func (s *Store) CountNodes(runID string) (int, error) {
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM nodes WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// CountEdges returns how many edges a run stored.
func (s *Store) CountEdges(runID string) (int, error) {
	var n int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM edges WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
