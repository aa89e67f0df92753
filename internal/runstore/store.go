package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/gustavo/chainagent/internal/compose"
	"github.com/gustavo/chainagent/internal/submit"
)

// RunStatus tracks a persisted action run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusReported RunStatus = "reported"
	RunStatusFailed   RunStatus = "failed"
	RunStatusTimedOut RunStatus = "timed_out"
)

// Run is the durable record of one action request moving through the
// pipeline: its stage transitions, every transaction it produced, and the
// terminal outcome.
type Run struct {
	RunID     string            `json:"run_id"`
	Kind      string            `json:"kind"`
	Status    RunStatus         `json:"status"`
	Stage     string            `json:"stage"`
	ChainID   int64             `json:"chain_id"`
	Text      string            `json:"text"`
	Address   string            `json:"address,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	TxRecords []submit.TxRecord `json:"tx_records,omitempty"`
	Outcome   *compose.Outcome  `json:"outcome,omitempty"`
}

func NewRun(runID, kind, text string, chainID int64) Run {
	now := time.Now().UTC().Format(time.RFC3339)
	return Run{
		RunID:     runID,
		Kind:      kind,
		Status:    RunStatusRunning,
		ChainID:   chainID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Run) Touch() {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Store persists runs in sqlite, guarded by a file lock so concurrent
// processes sharing the same store do not interleave writes.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create run lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run sqlite: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_runs_status_updated ON runs(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init run schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(run Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return fmt.Errorf("save run: missing run id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock run store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock run store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	createdUnix := rfc3339Unix(run.CreatedAt)
	updatedUnix := rfc3339Unix(run.UpdatedAt)

	_, err = s.db.Exec(`
		INSERT INTO runs (run_id, kind, status, chain_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			kind=excluded.kind,
			status=excluded.status,
			chain_id=excluded.chain_id,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, run.RunID, run.Kind, run.Status, run.ChainID, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) Get(runID string) (Run, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM runs WHERE run_id = ?", runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run not found: %s", runID)
		}
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return Run{}, fmt.Errorf("decode run payload: %w", err)
	}
	return run, nil
}

func (s *Store) List(status string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM runs ORDER BY updated_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM runs WHERE status = ? ORDER BY updated_at DESC LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		var run Run
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, fmt.Errorf("decode run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func rfc3339Unix(v string) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}
