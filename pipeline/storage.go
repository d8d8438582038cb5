package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// StorageConfig configures the prediction log.
type StorageConfig struct {
	DBPath    string `yaml:"path"`
	EnableWAL bool   `yaml:"wal"`
}

// PredictionRecord is one logged prediction row.
type PredictionRecord struct {
	RequestID string    `json:"request_id"`
	Domain    string    `json:"domain"`
	Source    string    `json:"source"`
	RowIndex  int       `json:"row_index"`
	Input     string    `json:"input"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// PredictionStore keeps a log of served predictions in SQLite.
type PredictionStore struct {
	config StorageConfig
	db     *sql.DB

	insertStmt *sql.Stmt
	stmtLock   sync.Mutex
}

// NewPredictionStore opens (and creates if needed) the database.
func NewPredictionStore(config StorageConfig) (*PredictionStore, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(config.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := config.DBPath + "?_busy_timeout=5000"
	if config.EnableWAL {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &PredictionStore{config: config, db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return s, nil
}

func (s *PredictionStore) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id TEXT NOT NULL,
            domain TEXT NOT NULL,
            source TEXT NOT NULL,
            row_index INTEGER NOT NULL,
            input TEXT,
            value REAL NOT NULL,
            created_at INTEGER NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_request ON predictions(request_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *PredictionStore) stmt() (*sql.Stmt, error) {
	s.stmtLock.Lock()
	defer s.stmtLock.Unlock()
	if s.insertStmt != nil {
		return s.insertStmt, nil
	}
	stmt, err := s.db.Prepare(`INSERT INTO predictions
        (request_id, domain, source, row_index, input, value, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	s.insertStmt = stmt
	return stmt, nil
}

// SaveBatch writes records in one transaction.
func (s *PredictionStore) SaveBatch(ctx context.Context, records []PredictionRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := s.stmt()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, r := range records {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		_, err := tx.StmtContext(ctx, stmt).ExecContext(ctx,
			r.RequestID,
			r.Domain,
			r.Source,
			r.RowIndex,
			r.Input,
			r.Value,
			created.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the newest records first.
func (s *PredictionStore) Recent(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT request_id, domain, source, row_index, input, value, created_at
        FROM predictions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PredictionRecord
	for rows.Next() {
		var (
			r       PredictionRecord
			input   sql.NullString
			created int64
		)
		if err := rows.Scan(&r.RequestID, &r.Domain, &r.Source, &r.RowIndex, &input, &r.Value, &created); err != nil {
			return nil, err
		}
		r.Input = input.String
		r.CreatedAt = time.UnixMilli(created)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of logged predictions.
func (s *PredictionStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	return n, err
}

// Close releases the statement and database.
func (s *PredictionStore) Close() error {
	s.stmtLock.Lock()
	if s.insertStmt != nil {
		_ = s.insertStmt.Close()
		s.insertStmt = nil
	}
	s.stmtLock.Unlock()
	return s.db.Close()
}
