package bridge

import (
	"context"
	"sync"
)

// Constraints selects which kinds of capture to acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// Track is one audio or video track of a media stream. SetEnabled is a
// local flip only, it is never renegotiated with the remote side.
type Track interface {
	Kind() string
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

// Stream is an opaque media handle. Stop releases every track, which is
// what gives the camera and microphone back.
type Stream interface {
	Tracks() []Track
	Stop()
}

// Media acquires local capture. Acquisition can fail when the user denies
// permission; that failure is surfaced, not retried.
type Media interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// MediaFunc adapts a plain function to the Media interface.
type MediaFunc func(ctx context.Context, c Constraints) (Stream, error)

func (f MediaFunc) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	return f(ctx, c)
}

type simpleStream struct {
	mu     sync.Mutex
	tracks []Track
}

// NewStream bundles tracks into a Stream.
func NewStream(tracks ...Track) Stream {
	return &simpleStream{tracks: tracks}
}

func (s *simpleStream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *simpleStream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
