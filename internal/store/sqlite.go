package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yogguru/trainer/internal/domain"
	"github.com/yogguru/trainer/internal/shared"
)

const (
	writeAttempts  = 3
	writeBaseDelay = 100 * time.Millisecond
)

// ErrSessionNotFound is returned when finishing an unknown practice session.
var ErrSessionNotFound = errors.New("practice session not found")

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS practice_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		pose_id TEXT NOT NULL,
		language TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		active_seconds INTEGER NOT NULL DEFAULT 0,
		verdicts INTEGER NOT NULL DEFAULT 0,
		avg_accuracy REAL NOT NULL DEFAULT 0,
		best_accuracy REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_practice_user_started ON practice_sessions(user_id, started_at);

	CREATE TABLE IF NOT EXISTS verdicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		pose_id TEXT NOT NULL,
		accuracy REAL NOT NULL,
		message TEXT NOT NULL,
		corrections_json TEXT NOT NULL,
		is_correct INTEGER NOT NULL,
		fallback INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_user_created ON verdicts(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// CreatePracticeSession records the start of a trainer run. A missing ID is generated.
func (s *SQLiteStore) CreatePracticeSession(ctx context.Context, session *domain.PracticeSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	query := `
	INSERT INTO practice_sessions (id, user_id, pose_id, language, started_at)
	VALUES (?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, writeAttempts, writeBaseDelay, "create_practice_session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, session.UserID, session.PoseID, string(session.Language), session.StartedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert practice session: %w", err)
		}
		return nil
	})
}

// FinishPracticeSession stores the end time and totals of a run.
func (s *SQLiteStore) FinishPracticeSession(ctx context.Context, session *domain.PracticeSession) error {
	query := `
	UPDATE practice_sessions
	SET ended_at = ?, active_seconds = ?, verdicts = ?, avg_accuracy = ?, best_accuracy = ?
	WHERE id = ?`

	return shared.RetryOnConflict(ctx, writeAttempts, writeBaseDelay, "finish_practice_session", func() error {
		result, err := s.db.ExecContext(ctx, query,
			session.EndedAt.Unix(), session.ActiveSeconds, session.Verdicts,
			session.AvgAccuracy, session.BestAccuracy, session.ID)
		if err != nil {
			return fmt.Errorf("finish practice session: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
		}
		return nil
	})
}

// RecordVerdict appends a verdict to the history.
func (s *SQLiteStore) RecordVerdict(ctx context.Context, record *domain.VerdictRecord) error {
	corrections := record.Verdict.Corrections
	if corrections == nil {
		corrections = []string{}
	}
	correctionsJSON, err := json.Marshal(corrections)
	if err != nil {
		return fmt.Errorf("marshal corrections: %w", err)
	}

	query := `
	INSERT INTO verdicts (session_id, user_id, pose_id, accuracy, message, corrections_json, is_correct, fallback, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, writeAttempts, writeBaseDelay, "record_verdict", func() error {
		result, err := s.db.ExecContext(ctx, query,
			record.SessionID, record.UserID, record.PoseID,
			record.Verdict.Accuracy, record.Verdict.Message, string(correctionsJSON),
			record.Verdict.IsCorrect, record.Fallback, record.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert verdict: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get verdict id: %w", err)
		}
		record.ID = id
		return nil
	})
}

// ListPracticeSessions returns a user's sessions started at or after since, newest first.
func (s *SQLiteStore) ListPracticeSessions(ctx context.Context, userID string, since time.Time) ([]domain.PracticeSession, error) {
	query := `
		SELECT id, user_id, pose_id, language, started_at, ended_at,
		       active_seconds, verdicts, avg_accuracy, best_accuracy
		FROM practice_sessions
		WHERE user_id = ? AND started_at >= ?
		ORDER BY started_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query practice sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close practice session rows", "error", closeErr)
		}
	}()

	sessions := []domain.PracticeSession{}
	for rows.Next() {
		var ps domain.PracticeSession
		var language string
		var startedAt int64
		var endedAt sql.NullInt64

		if err := rows.Scan(
			&ps.ID, &ps.UserID, &ps.PoseID, &language, &startedAt, &endedAt,
			&ps.ActiveSeconds, &ps.Verdicts, &ps.AvgAccuracy, &ps.BestAccuracy,
		); err != nil {
			return nil, fmt.Errorf("scan practice session row: %w", err)
		}

		ps.Language = domain.Language(language)
		ps.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			ps.EndedAt = time.Unix(endedAt.Int64, 0)
		}
		sessions = append(sessions, ps)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate practice sessions: %w", err)
	}
	return sessions, nil
}

// ListVerdicts returns a user's verdicts created at or after since, oldest first.
func (s *SQLiteStore) ListVerdicts(ctx context.Context, userID string, since time.Time) ([]domain.VerdictRecord, error) {
	query := `
		SELECT id, session_id, user_id, pose_id, accuracy, message,
		       corrections_json, is_correct, fallback, created_at
		FROM verdicts
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, userID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close verdict rows", "error", closeErr)
		}
	}()

	records := []domain.VerdictRecord{}
	for rows.Next() {
		var r domain.VerdictRecord
		var correctionsJSON string
		var createdAt int64

		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.UserID, &r.PoseID, &r.Verdict.Accuracy, &r.Verdict.Message,
			&correctionsJSON, &r.Verdict.IsCorrect, &r.Fallback, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan verdict row: %w", err)
		}
		if err := json.Unmarshal([]byte(correctionsJSON), &r.Verdict.Corrections); err != nil {
			return nil, fmt.Errorf("decode corrections for verdict %d: %w", r.ID, err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return records, nil
}

// DeleteVerdictsBefore prunes verdict history older than before.
func (s *SQLiteStore) DeleteVerdictsBefore(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, writeAttempts, writeBaseDelay, "delete_verdicts", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM verdicts WHERE created_at < ?`, before.Unix())
		if err != nil {
			return fmt.Errorf("delete verdicts: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
