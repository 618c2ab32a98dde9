// Package store persists frame metadata records. Compositing addresses
// frames by ordinal index through this store, never by wall-clock time.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// PersistedFrame is the immutable metadata record for one accepted
// (non-duplicate) sample. Paths are relative to the project storage root.
type PersistedFrame struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ProjectID    uuid.UUID `json:"project_id" db:"project_id"`
	OrdinalIndex int       `json:"ordinal_index" db:"ordinal_index"`
	FrameName    string    `json:"frame_name" db:"frame_name"`
	ImagePath    string    `json:"image_path" db:"image_path"`
	// ThumbnailPath is empty when thumbnail generation failed; the
	// full-resolution frame is still valid.
	ThumbnailPath string `json:"thumbnail_path,omitempty" db:"thumbnail_path"`
}

// FrameStore is the metadata store contract the pipelines depend on.
type FrameStore interface {
	// Insert records one frame. Ordinal indices are unique per project.
	Insert(ctx context.Context, frame PersistedFrame) error
	// Frames returns all frames for a project ordered by ordinal index.
	Frames(ctx context.Context, projectID uuid.UUID) ([]PersistedFrame, error)
	// Count returns the number of frames recorded for a project.
	Count(ctx context.Context, projectID uuid.UUID) (int, error)
}

// MemStore is an in-process FrameStore. It is the default when no database
// is configured, and the test double.
type MemStore struct {
	mu     sync.RWMutex
	frames map[uuid.UUID][]PersistedFrame
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{frames: make(map[uuid.UUID][]PersistedFrame)}
}

// Insert implements FrameStore.
func (m *MemStore) Insert(_ context.Context, frame PersistedFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.frames[frame.ProjectID] {
		if f.OrdinalIndex == frame.OrdinalIndex {
			return fmt.Errorf("store: duplicate ordinal index %d for project %s",
				frame.OrdinalIndex, frame.ProjectID)
		}
	}
	m.frames[frame.ProjectID] = append(m.frames[frame.ProjectID], frame)
	return nil
}

// Frames implements FrameStore.
func (m *MemStore) Frames(_ context.Context, projectID uuid.UUID) ([]PersistedFrame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PersistedFrame, len(m.frames[projectID]))
	copy(out, m.frames[projectID])
	sort.Slice(out, func(i, j int) bool { return out[i].OrdinalIndex < out[j].OrdinalIndex })
	return out, nil
}

// Count implements FrameStore.
func (m *MemStore) Count(_ context.Context, projectID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.frames[projectID]), nil
}

// WriteManifest writes a JSON snapshot of all frames for a project. The
// manifest feeds the optional export step and completeness checks against
// the expected sample count.
func WriteManifest(ctx context.Context, s FrameStore, projectID uuid.UUID, path string) error {
	frames, err := s.Frames(ctx, projectID)
	if err != nil {
		return fmt.Errorf("store: load frames for manifest: %w", err)
	}
	data, err := json.MarshalIndent(struct {
		ProjectID uuid.UUID        `json:"project_id"`
		Count     int              `json:"count"`
		Frames    []PersistedFrame `json:"frames"`
	}{projectID, len(frames), frames}, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("store: write manifest %s: %w", path, err)
	}
	return nil
}
