// Package display models the screen region a viewport draws into.
package display

import (
	"errors"
	"image"
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

var (
	ErrSurfaceAttached = errors.New("display element already has a surface")
	ErrSurfaceReleased = errors.New("surface released")
)

// Size is a pixel size
type Size struct {
	Width  int
	Height int
}

// Empty reports whether nothing can be drawn at this size
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Presenter shows rendered frames on the host, e.g. a fyne canvas image
type Presenter interface {
	Present(img image.Image)
	Clear()
}

// Element is a mountable screen region holding at most one surface
type Element struct {
	mu        sync.Mutex
	size      Size
	surface   *Surface
	presenter Presenter

	resizeFeed event.FeedOf[Size]
}

// NewElement creates an element that shows frames through presenter
func NewElement(size Size, presenter Presenter) *Element {
	return &Element{size: size, presenter: presenter}
}

// Size returns the current pixel size
func (e *Element) Size() Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// Resize updates the size and notifies subscribers when it changed
func (e *Element) Resize(size Size) {
	e.mu.Lock()
	if e.size == size {
		e.mu.Unlock()
		return
	}
	e.size = size
	e.mu.Unlock()

	e.resizeFeed.Send(size)
}

// SubscribeResize delivers size changes to ch
func (e *Element) SubscribeResize(ch chan<- Size) event.Subscription {
	return e.resizeFeed.Subscribe(ch)
}

// Attach creates the element's surface; only one may exist at a time
func (e *Element) Attach() (*Surface, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.surface != nil {
		return nil, ErrSurfaceAttached
	}
	e.surface = &Surface{element: e}
	return e.surface, nil
}

// LiveSurfaces returns the number of attached, unreleased surfaces
func (e *Element) LiveSurfaces() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return 0
	}
	return 1
}

func (e *Element) detach(s *Surface) {
	e.mu.Lock()
	if e.surface == s {
		e.surface = nil
	}
	presenter := e.presenter
	e.mu.Unlock()

	if presenter != nil {
		presenter.Clear()
	}
}

// Surface is the drawing target a viewport owns while it is alive
type Surface struct {
	mu       sync.Mutex
	element  *Element
	released bool
}

// Size returns the size of the owning element
func (s *Surface) Size() Size {
	return s.element.Size()
}

// Present shows a frame. After Release it fails with ErrSurfaceReleased.
func (s *Surface) Present(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrSurfaceReleased
	}
	if p := s.element.presenter; p != nil {
		p.Present(img)
	}
	return nil
}

// Released reports whether Release was called
func (s *Surface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release detaches the surface from its element. It is safe to call more than once
// and waits for an in-flight Present to finish.
func (s *Surface) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()

	s.element.detach(s)
}
