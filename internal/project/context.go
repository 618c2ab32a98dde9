// Package project defines the immutable per-project context shared by the
// extraction and compositing pipelines. All paths handed out here are
// relative to the project storage root so the root can relocate between
// runs and devices.
package project

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	framesDirName = "frames"
	thumbsDirName = "thumbnails"

	// CompositeFileName is the fixed name of the rendered overlay video
	// inside the project directory.
	CompositeFileName = "compositeOverlay.mp4"
)

// Context identifies one project and its storage layout. It is passed by
// value into pipelines; nothing in the core mutates it after creation.
type Context struct {
	ID        uuid.UUID
	Root      string // absolute storage root for this project
	FrameRate float64
}

// New creates a project context rooted at root. FrameRate is the nominal
// rate of the source video and drives both sampling and output timing.
func New(root string, frameRate float64) (Context, error) {
	if root == "" {
		return Context{}, fmt.Errorf("project: empty storage root")
	}
	if frameRate <= 0 {
		return Context{}, fmt.Errorf("project: invalid frame rate %v", frameRate)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Context{}, fmt.Errorf("project: resolve root: %w", err)
	}
	return Context{ID: uuid.New(), Root: abs, FrameRate: frameRate}, nil
}

// FramesDir returns the root-relative directory holding full-resolution
// frame images.
func (c Context) FramesDir() string { return framesDirName }

// ThumbsDir returns the root-relative directory holding thumbnails.
func (c Context) ThumbsDir() string { return thumbsDirName }

// FrameImagePath returns the root-relative path for the full-resolution
// image of the frame at the given ordinal index.
func (c Context) FrameImagePath(index int) string {
	return filepath.Join(framesDirName, fmt.Sprintf("frame_%06d.jpg", index))
}

// ThumbnailPath returns the root-relative path for the thumbnail of the
// frame at the given ordinal index.
func (c Context) ThumbnailPath(index int) string {
	return filepath.Join(thumbsDirName, fmt.Sprintf("thumb_%06d.jpg", index))
}

// CompositePath returns the root-relative path of the rendered composite
// video artifact.
func (c Context) CompositePath() string { return CompositeFileName }

// Abs resolves a root-relative path to an absolute one.
func (c Context) Abs(rel string) string { return filepath.Join(c.Root, rel) }
