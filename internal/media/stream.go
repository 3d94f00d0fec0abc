// Package media provides the device-side resources a call holds: local and
// remote streams, recorders, artifact storage and a peer connector.
package media

import (
	"sync"

	"github.com/google/uuid"
)

// Track is one live media track. Stop releases the underlying device.
type Track interface {
	Kind() string
	Stop()
	Live() bool
}

// Stream groups the tracks captured from one device or received from a peer.
type Stream interface {
	ID() string
	Tracks() []Track
}

// StopAll stops every track of s. It is safe on a nil stream.
func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Live reports whether any track of s is still running.
func Live(s Stream) bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tracks() {
		if t.Live() {
			return true
		}
	}
	return false
}

type syntheticTrack struct {
	kind    string
	mu      sync.Mutex
	stopped bool
}

func (t *syntheticTrack) Kind() string { return t.kind }

func (t *syntheticTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *syntheticTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

// SyntheticStream is an in-memory stream with audio and video tracks.
type SyntheticStream struct {
	id     string
	tracks []Track
}

// NewSyntheticStream creates a live stream with one track per kind, or an
// audio and a video track when no kinds are given.
func NewSyntheticStream(kinds ...string) *SyntheticStream {
	if len(kinds) == 0 {
		kinds = []string{"audio", "video"}
	}
	s := &SyntheticStream{id: uuid.NewString()}
	for _, k := range kinds {
		s.tracks = append(s.tracks, &syntheticTrack{kind: k})
	}
	return s
}

func (s *SyntheticStream) ID() string { return s.id }

func (s *SyntheticStream) Tracks() []Track {
	return append([]Track(nil), s.tracks...)
}
