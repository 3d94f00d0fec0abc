package media

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotLive is returned when recording a stream with no running track.
var ErrNotLive = errors.New("stream has no live track")

// Artifact is a finished recording.
type Artifact struct {
	Name     string
	MimeType string
	Data     []byte
}

// Recorder captures a stream until stopped.
type Recorder interface {
	Stop() (Artifact, error)
}

// ChunkRecorder samples a stream at a fixed interval, one chunk per tick.
type ChunkRecorder struct {
	stream  Stream
	started time.Time

	mu      sync.Mutex
	buf     bytes.Buffer
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewChunkRecorder starts recording s.
func NewChunkRecorder(s Stream, interval time.Duration) (*ChunkRecorder, error) {
	if !Live(s) {
		return nil, ErrNotLive
	}
	if interval <= 0 {
		interval = time.Second
	}
	r := &ChunkRecorder{
		stream:  s,
		started: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	fmt.Fprintf(&r.buf, "stream %s started %s\n", s.ID(), r.started.UTC().Format(time.RFC3339Nano))
	go r.loop(interval)
	return r, nil
}

func (r *ChunkRecorder) loop(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.chunk()
		case <-r.stop:
			return
		}
	}
}

func (r *ChunkRecorder) chunk() {
	r.mu.Lock()
	defer r.mu.Unlock()
	offset := time.Since(r.started).Milliseconds()
	for _, t := range r.stream.Tracks() {
		if t.Live() {
			fmt.Fprintf(&r.buf, "%d %s\n", offset, t.Kind())
		}
	}
}

// Stop ends the recording and returns what was captured. A second Stop fails.
func (r *ChunkRecorder) Stop() (Artifact, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return Artifact{}, errors.New("recorder already stopped")
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stop)
	<-r.done
	r.chunk()

	r.mu.Lock()
	defer r.mu.Unlock()
	return Artifact{
		Name:     fmt.Sprintf("recording-%s.txt", r.started.UTC().Format("20060102T150405")),
		MimeType: "text/plain",
		Data:     append([]byte(nil), r.buf.Bytes()...),
	}, nil
}
