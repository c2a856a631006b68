package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a session id is not stored.
var ErrNotFound = errors.New("session not found")

// Store manages the PostgreSQL connection pool for analysis sessions.
type Store struct {
	pool *pgxpool.Pool
}

// Session identifies one stored analysis.
type Session struct {
	ID     string
	Mode   posture.Mode
	Source string // original upload file name or CLI path
}

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	Session
	posture.Summary
	AnalyzedAt time.Time
}

// New establishes a connection pool and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS posture_sessions (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			source TEXT NOT NULL,
			total_frames INT NOT NULL,
			good_frames INT NOT NULL,
			bad_frames INT NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			common_issues TEXT[] NOT NULL,
			recommendations TEXT[] NOT NULL,
			analyzed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS posture_frames (
			session_id TEXT REFERENCES posture_sessions(id) ON DELETE CASCADE,
			frame_number INT NOT NULL,
			timestamp DOUBLE PRECISION NOT NULL,
			is_good BOOLEAN NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			back DOUBLE PRECISION NOT NULL,
			neck DOUBLE PRECISION NOT NULL,
			knee DOUBLE PRECISION NOT NULL,
			issues TEXT[] NOT NULL,
			PRIMARY KEY (session_id, frame_number)
		);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveReport stores a report under sess.ID. Re-analysing the same session replaces
// the previous frames atomically.
func (s *Store) SaveReport(ctx context.Context, sess Session, report posture.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sum := report.Summary
	_, err = tx.Exec(ctx, `
		INSERT INTO posture_sessions (id, mode, source, total_frames, good_frames, bad_frames,
			accuracy, common_issues, recommendations, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			total_frames = EXCLUDED.total_frames,
			good_frames = EXCLUDED.good_frames,
			bad_frames = EXCLUDED.bad_frames,
			accuracy = EXCLUDED.accuracy,
			common_issues = EXCLUDED.common_issues,
			recommendations = EXCLUDED.recommendations,
			analyzed_at = NOW()
	`, sess.ID, sess.Mode.String(), sess.Source, sum.TotalFrames, sum.GoodFrames, sum.BadFrames,
		sum.Accuracy, sum.CommonIssues, sum.Recommendations)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM posture_frames WHERE session_id = $1", sess.ID); err != nil {
		return fmt.Errorf("clear frames: %w", err)
	}

	frames := report.FrameResults
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"posture_frames"},
		[]string{"session_id", "frame_number", "timestamp", "is_good", "confidence", "back", "neck", "knee", "issues"},
		pgx.CopyFromSlice(len(frames), func(i int) ([]any, error) {
			f := frames[i]
			return []any{sess.ID, f.FrameNumber, f.Timestamp, f.IsGoodPosture, f.Confidence,
				f.Angles.Back, f.Angles.Neck, f.Angles.Knee, f.Issues}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy frames: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadReport rebuilds a stored report, frames in ascending order.
func (s *Store) LoadReport(ctx context.Context, id string) (posture.Report, error) {
	var sum posture.Summary
	err := s.pool.QueryRow(ctx, `
		SELECT total_frames, good_frames, bad_frames, accuracy, common_issues, recommendations
		FROM posture_sessions WHERE id = $1
	`, id).Scan(&sum.TotalFrames, &sum.GoodFrames, &sum.BadFrames, &sum.Accuracy, &sum.CommonIssues, &sum.Recommendations)
	if errors.Is(err, pgx.ErrNoRows) {
		return posture.Report{}, ErrNotFound
	}
	if err != nil {
		return posture.Report{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT frame_number, timestamp, is_good, confidence, back, neck, knee, issues
		FROM posture_frames WHERE session_id = $1 ORDER BY frame_number
	`, id)
	if err != nil {
		return posture.Report{}, err
	}
	defer rows.Close()

	frames := make([]posture.FrameResult, 0, sum.TotalFrames)
	for rows.Next() {
		var f posture.FrameResult
		if err := rows.Scan(&f.FrameNumber, &f.Timestamp, &f.IsGoodPosture, &f.Confidence,
			&f.Angles.Back, &f.Angles.Neck, &f.Angles.Knee, &f.Issues); err != nil {
			return posture.Report{}, err
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return posture.Report{}, err
	}

	return posture.Report{FrameResults: frames, Summary: sum}, nil
}

// ListSessions returns stored sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mode, source, total_frames, good_frames, bad_frames, accuracy,
			common_issues, recommendations, analyzed_at
		FROM posture_sessions
		ORDER BY analyzed_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		var mode string
		if err := rows.Scan(&ss.ID, &mode, &ss.Source, &ss.TotalFrames, &ss.GoodFrames, &ss.BadFrames,
			&ss.Accuracy, &ss.CommonIssues, &ss.Recommendations, &ss.AnalyzedAt); err != nil {
			return nil, err
		}
		if ss.Mode, err = posture.ParseMode(mode); err != nil {
			return nil, fmt.Errorf("session %s: %w", ss.ID, err)
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// Reset drops all application tables to clear the database state.
// The schema is recreated by the next New.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS posture_frames CASCADE;
		DROP TABLE IF EXISTS posture_sessions CASCADE;
	`)
	return err
}
