package encoder

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBeginRejectsUnusableConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		fps    float64
		width  int
		height int
	}{
		{"zero fps", 0, 640, 480},
		{"negative fps", -1, 640, 480},
		{"zero width", 30, 0, 480},
		{"zero height", 30, 640, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewVideoWriterSink(t.TempDir()+"/out.mp4", "avc1", tc.fps, zap.NewNop())
			err := s.Begin(tc.width, tc.height)
			if err == nil {
				t.Fatal("Begin should fail before any frame is processed")
			}
			var sinkErr *SinkError
			if !errors.As(err, &sinkErr) || !sinkErr.Fatal {
				t.Fatalf("err = %v, want fatal SinkError", err)
			}
			if s.State() != StateFinishedErr {
				t.Fatalf("state = %d, want StateFinishedErr", s.State())
			}
		})
	}
}

func TestAppendBeforeBeginFails(t *testing.T) {
	s := NewVideoWriterSink(t.TempDir()+"/out.mp4", "avc1", 30, zap.NewNop())
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := s.Append(context.Background(), img, 0); err == nil {
		t.Fatal("Append on an uninitialized sink should fail")
	}
}

func TestFinalizeWithoutBeginFails(t *testing.T) {
	s := NewVideoWriterSink(t.TempDir()+"/out.mp4", "avc1", 30, zap.NewNop())
	first := s.Finalize()
	if first == nil {
		t.Fatal("Finalize on an uninitialized sink should fail")
	}
	if s.State() != StateFinishedErr {
		t.Fatalf("state = %d, want StateFinishedErr", s.State())
	}
	// A failed sink keeps reporting its failure rather than a clean close.
	if err := s.Finalize(); !errors.Is(err, first) {
		t.Fatalf("second Finalize = %v, want the stored failure %v", err, first)
	}
}

func TestFinalizeAfterFailureReportsStoredError(t *testing.T) {
	s := NewVideoWriterSink(t.TempDir()+"/out.mp4", "avc1", 0, zap.NewNop())
	beginErr := s.Begin(640, 480)
	if beginErr == nil {
		t.Fatal("Begin should fail with zero fps")
	}
	if err := s.Finalize(); !errors.Is(err, beginErr) {
		t.Fatalf("Finalize = %v, want the Begin failure %v", err, beginErr)
	}
}

func TestAbortBeforeBeginIsSafe(t *testing.T) {
	s := NewVideoWriterSink(t.TempDir()+"/out.mp4", "avc1", 30, zap.NewNop())
	s.Abort()
	if s.State() != StateFinishedErr {
		t.Fatalf("state = %d, want StateFinishedErr", s.State())
	}
	// Aborting twice, or finalizing after an abort, must not panic.
	s.Abort()
	if err := s.Finalize(); err != nil {
		// No stored failure before Begin; nil is also acceptable.
		var sinkErr *SinkError
		if !errors.As(err, &sinkErr) {
			t.Fatalf("Finalize after Abort = %v", err)
		}
	}
}

func TestSinkErrorWrapping(t *testing.T) {
	cause := errors.New("disk full")
	err := &SinkError{Op: "append", Fatal: true, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("SinkError should unwrap to its cause")
	}
	if err.Error() == "" {
		t.Fatal("empty error string")
	}
}

func TestAppendStateAfterFailure(t *testing.T) {
	s := NewVideoWriterSink(t.TempDir()+"/out.mp4", "avc1", 0, zap.NewNop())
	_ = s.Begin(640, 480)
	// After a failed Begin the sink must refuse appends rather than write
	// into a half-open container.
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := s.Append(context.Background(), img, time.Second/30); err == nil {
		t.Fatal("Append after failed Begin should fail")
	}
}
