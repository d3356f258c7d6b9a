// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/seqrecall/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ParticipantCounter is the counter key for participant numbers.
const ParticipantCounter = "participant_number"

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps SQLite access for session data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			participant_number INTEGER NOT NULL,
			identifier TEXT NOT NULL,
			strategy TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			uploaded INTEGER NOT NULL DEFAULT 0,
			upload_filename TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS trials (
			session_id TEXT NOT NULL,
			trial_index INTEGER NOT NULL,
			sequence TEXT NOT NULL,
			recall TEXT NOT NULL,
			correct_count INTEGER NOT NULL,
			total_letters INTEGER NOT NULL,
			accuracy REAL NOT NULL,
			compressibility INTEGER NOT NULL,
			pattern_type TEXT NOT NULL,
			rt_seconds REAL NOT NULL,
			timed_out INTEGER NOT NULL,
			PRIMARY KEY (session_id, trial_index)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_trials_pattern_type ON trials(pattern_type);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// NextCounter increments the named counter and returns its new value.
// The first call for a name returns 1.
func (s *Store) NextCounter(ctx context.Context, name string) (int, error) {
	var value int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters (name, value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1
		 RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// InsertSession stores a completed session and its trial records.
func (s *Store) InsertSession(ctx context.Context, summary model.SessionSummary, records []model.TrialRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, participant_number, identifier, strategy, started_at, ended_at, uploaded, upload_filename)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID,
		summary.ParticipantNumber,
		summary.Identifier,
		summary.Strategy,
		summary.StartedAt.Format(time.RFC3339Nano),
		summary.EndedAt.Format(time.RFC3339Nano),
		boolToInt(summary.Uploaded),
		summary.UploadFilename,
	)
	if err != nil {
		return err
	}

	if len(records) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO trials (session_id, trial_index, sequence, recall, correct_count, total_letters, accuracy, compressibility, pattern_type, rt_seconds, timed_out)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, r := range records {
			if _, err = stmt.ExecContext(ctx, summary.ID, r.TrialIndex, r.Sequence, r.Recall, r.CorrectCount, r.TotalLetters,
				r.Accuracy, r.Compressibility, string(r.PatternType), r.RTSeconds, boolToInt(r.TimedOut)); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

// MarkUploaded records a successful upload for a session.
func (s *Store) MarkUploaded(ctx context.Context, sessionID, filename string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET uploaded = 1, upload_filename = ? WHERE id = ?`, filename, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// GetSession loads a session and its records in presentation order. Records
// carry the session context so they are ready for upload or export.
func (s *Store) GetSession(ctx context.Context, sessionID string) (model.SessionSummary, []model.TrialRecord, error) {
	sessions, err := s.querySessions(ctx, "s.id = ?", []any{sessionID})
	if err != nil {
		return model.SessionSummary{}, nil, err
	}
	if len(sessions) == 0 {
		return model.SessionSummary{}, nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	summary := sessions[0]

	rows, err := s.db.QueryContext(ctx,
		`SELECT trial_index, sequence, recall, correct_count, total_letters, accuracy, compressibility, pattern_type, rt_seconds, timed_out
		 FROM trials WHERE session_id = ? ORDER BY trial_index ASC`, sessionID)
	if err != nil {
		return model.SessionSummary{}, nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.TrialRecord
	for rows.Next() {
		var r model.TrialRecord
		var pattern string
		var timedOut int
		if err := rows.Scan(&r.TrialIndex, &r.Sequence, &r.Recall, &r.CorrectCount, &r.TotalLetters, &r.Accuracy,
			&r.Compressibility, &pattern, &r.RTSeconds, &timedOut); err != nil {
			return model.SessionSummary{}, nil, err
		}
		r.PatternType = model.Category(pattern)
		r.TimedOut = timedOut != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return model.SessionSummary{}, nil, err
	}
	records = model.StampContext(records, model.SessionContext{
		SessionID:         summary.ID,
		ParticipantNumber: summary.ParticipantNumber,
		Identifier:        summary.Identifier,
		Strategy:          summary.Strategy,
	})
	return summary, records, nil
}

// ListSessions returns session summaries filtered by stats config, oldest first.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Identifier != "" {
		clauses = append(clauses, "s.identifier = ?")
		args = append(args, cfg.Identifier)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "s.ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	return s.querySessions(ctx, strings.Join(clauses, " AND "), args)
}

// ListPending returns sessions that have not been uploaded, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]model.SessionSummary, error) {
	return s.querySessions(ctx, "s.uploaded = 0", nil)
}

func (s *Store) querySessions(ctx context.Context, where string, args []any) ([]model.SessionSummary, error) {
	query := fmt.Sprintf(`SELECT s.id, s.participant_number, s.identifier, s.strategy, s.started_at, s.ended_at,
			s.uploaded, s.upload_filename,
			COALESCE(SUM(t.correct_count), 0), COALESCE(SUM(t.total_letters), 0)
		FROM sessions s
		LEFT JOIN trials t ON t.session_id = s.id
		WHERE %s
		GROUP BY s.id
		ORDER BY s.ended_at ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		var startedAt, endedAt string
		var uploaded int
		if err := rows.Scan(&sum.ID, &sum.ParticipantNumber, &sum.Identifier, &sum.Strategy, &startedAt, &endedAt,
			&uploaded, &sum.UploadFilename, &sum.Correct, &sum.Total); err != nil {
			return nil, err
		}
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if sum.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		sum.Uploaded = uploaded != 0
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListCategoryAggregates aggregates trial results per pattern type across sessions.
func (s *Store) ListCategoryAggregates(ctx context.Context, sessionIDs []string) ([]model.CategoryAggregate, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sessionIDs))
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT pattern_type, COUNT(*) AS trials, SUM(correct_count) AS correct,
		SUM(total_letters) AS total, SUM(timed_out) AS timed_out, SUM(rt_seconds) AS rt_sum
		FROM trials
		WHERE session_id IN (%s)
		GROUP BY pattern_type`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.CategoryAggregate
	for rows.Next() {
		var agg model.CategoryAggregate
		var pattern string
		if err := rows.Scan(&pattern, &agg.Trials, &agg.Correct, &agg.Total, &agg.TimedOut, &agg.RTSumSeconds); err != nil {
			return nil, err
		}
		agg.Category = model.Category(pattern)
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
