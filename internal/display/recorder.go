package display

import (
	"image"
	"sync"
)

// Recorder is an in-memory Presenter used by headless runs and tests
type Recorder struct {
	mu     sync.Mutex
	frames int
	clears int
	last   image.Image
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Present(img image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	r.last = img
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	r.last = nil
}

// Frames returns the number of presented frames
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Clears returns how often the display was cleared
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// Last returns the most recent frame, or nil after a Clear
func (r *Recorder) Last() image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
