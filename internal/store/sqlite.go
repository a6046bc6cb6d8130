package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spigell/excel-interviewer/internal/session"

	_ "modernc.org/sqlite"
)

// SQLite persists sessions in a single-file database so interviews survive
// process restarts.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		candidate_id TEXT NOT NULL,
		status TEXT NOT NULL,
		current_question TEXT,
		turns_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		version INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Create(ctx context.Context, sess *session.Session) error {
	turns, err := json.Marshal(sess.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	sess.Version = 1
	query := `
	INSERT INTO sessions (id, candidate_id, status, current_question, turns_json, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.CandidateID, string(sess.Status), sess.CurrentQuestion,
		string(turns), sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(), sess.Version,
	)
	if err != nil {
		sess.Version = 0
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, id string) (*session.Session, error) {
	query := `
	SELECT id, candidate_id, status, current_question, turns_json, created_at, updated_at, version
	FROM sessions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var sess session.Session
	var status, turnsJSON string
	var currentQuestion sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&sess.ID, &sess.CandidateID, &status, &currentQuestion,
		&turnsJSON, &createdAt, &updatedAt, &sess.Version,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(turnsJSON), &sess.Turns); err != nil {
		return nil, fmt.Errorf("unmarshal turns: %w", err)
	}

	sess.Status = session.Status(status)
	sess.CurrentQuestion = currentQuestion.String
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &sess, nil
}

func (s *SQLite) Save(ctx context.Context, sess *session.Session) error {
	turns, err := json.Marshal(sess.Turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}

	query := `
	UPDATE sessions
	SET status = ?, current_question = ?, turns_json = ?, updated_at = ?, version = version + 1
	WHERE id = ? AND version = ?`

	result, err := s.db.ExecContext(ctx, query,
		string(sess.Status), sess.CurrentQuestion, string(turns),
		sess.UpdatedAt.Unix(), sess.ID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", sess.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %q", ErrNotFound, sess.ID)
		}
		if err != nil {
			return fmt.Errorf("check session existence: %w", err)
		}
		return fmt.Errorf("%w: session %q", ErrConflict, sess.ID)
	}

	sess.Version++
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
