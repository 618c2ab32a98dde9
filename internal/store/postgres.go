package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

const framesSchema = `
CREATE TABLE IF NOT EXISTS frames (
	id             UUID PRIMARY KEY,
	project_id     UUID NOT NULL,
	ordinal_index  INTEGER NOT NULL,
	frame_name     TEXT NOT NULL,
	image_path     TEXT NOT NULL,
	thumbnail_path TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, ordinal_index)
);
CREATE INDEX IF NOT EXISTS idx_frames_project_ordinal
	ON frames (project_id, ordinal_index);
`

// SQLStore implements FrameStore on PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLStore connects to PostgreSQL, ensures the schema, and returns the
// store.
func NewSQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, framesSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}

	return &SQLStore{db: db, logger: logger.Named("sql-store")}, nil
}

// Insert implements FrameStore.
func (s *SQLStore) Insert(ctx context.Context, frame PersistedFrame) error {
	if frame.ID == uuid.Nil {
		frame.ID = uuid.New()
	}
	const q = `
		INSERT INTO frames (id, project_id, ordinal_index, frame_name, image_path, thumbnail_path)
		VALUES (:id, :project_id, :ordinal_index, :frame_name, :image_path, :thumbnail_path)`
	if _, err := s.db.NamedExecContext(ctx, q, frame); err != nil {
		return fmt.Errorf("store: insert frame %d: %w", frame.OrdinalIndex, err)
	}
	return nil
}

// Frames implements FrameStore.
func (s *SQLStore) Frames(ctx context.Context, projectID uuid.UUID) ([]PersistedFrame, error) {
	const q = `
		SELECT id, project_id, ordinal_index, frame_name, image_path, thumbnail_path
		FROM frames WHERE project_id = $1 ORDER BY ordinal_index ASC`
	frames := []PersistedFrame{}
	if err := s.db.SelectContext(ctx, &frames, q, projectID); err != nil {
		return nil, fmt.Errorf("store: select frames: %w", err)
	}
	return frames, nil
}

// Count implements FrameStore.
func (s *SQLStore) Count(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM frames WHERE project_id = $1`, projectID); err != nil {
		return 0, fmt.Errorf("store: count frames: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }
