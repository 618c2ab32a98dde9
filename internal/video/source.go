// Package video abstracts frame-accurate raster access to a source video.
package video

import (
	"context"
	"image"
	"time"
)

// Source exposes the properties and frame access the sampler needs from a
// video asset. Implementations must provide frame-accurate (zero-tolerance)
// seeking: FrameAt returns the frame whose presentation time matches ts, not
// a nearby keyframe.
type Source interface {
	// Duration is the total playable duration of the primary visual track.
	Duration() time.Duration
	// FrameRate is the nominal frame rate of the primary visual track.
	FrameRate() float64
	// Size returns the natural pixel dimensions after any display transform.
	Size() (width, height int)
	// FrameAt decodes the raster frame at ts.
	FrameAt(ctx context.Context, ts time.Duration) (image.Image, error)
	// Close releases decoder resources.
	Close() error
}
