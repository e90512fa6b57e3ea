// Package renderloop drives the continuous redraw of a 3D viewport.
package renderloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

const DefaultFrameRate = 60

var ErrRunning = errors.New("render loop already running")

// Ticker is the frame clock; tests substitute a manual one
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// Interval converts a frame rate to a tick interval
func Interval(frameRate int) time.Duration {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return time.Second / time.Duration(frameRate)
}

// Loop calls a frame function on every tick until stopped.
// Frames and resizes share one lock, so a resize never lands in the middle of a frame.
type Loop struct {
	mu     sync.Mutex
	frame  func()
	resize func(width, height int)

	interval  time.Duration
	newTicker func(time.Duration) Ticker

	state   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	frames  uint64
}

// New creates a stopped loop
func New(interval time.Duration, frame func(), resize func(width, height int)) *Loop {
	return &Loop{
		frame:    frame,
		resize:   resize,
		interval: interval,
		newTicker: func(d time.Duration) Ticker {
			return timeTicker{t: time.NewTicker(d)}
		},
	}
}

// SetTicker replaces the frame clock; call before Start
func (l *Loop) SetTicker(newTicker func(time.Duration) Ticker) {
	l.newTicker = newTicker
}

// Start launches the loop goroutine. A stopped loop cannot be restarted.
func (l *Loop) Start(ctx context.Context) error {
	l.state.Lock()
	defer l.state.Unlock()

	if l.done != nil || l.stopped {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	ticker := l.newTicker(l.interval)
	go l.run(ctx, ticker, l.done)
	return nil
}

func (l *Loop) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.mu.Lock()
			// a stop may have raced with this tick
			if ctx.Err() != nil {
				l.mu.Unlock()
				return
			}
			l.frame()
			l.frames++
			l.mu.Unlock()
		}
	}
}

// Stop cancels the loop and waits for the goroutine to exit; no frame runs after it returns.
// It is safe to call more than once and on a loop that never started.
func (l *Loop) Stop() {
	l.state.Lock()
	defer l.state.Unlock()

	l.stopped = true
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
}

// Running reports whether the loop goroutine is active
func (l *Loop) Running() bool {
	l.state.Lock()
	defer l.state.Unlock()
	return l.cancel != nil
}

// Resize applies new surface dimensions synchronously
func (l *Loop) Resize(width, height int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resize != nil {
		l.resize(width, height)
	}
}

// Frames returns the number of frames drawn
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}
