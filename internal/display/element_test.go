package display

import (
	"errors"
	"image"
	"testing"
	"time"
)

func TestAttachOnlyOnce(t *testing.T) {
	el := NewElement(Size{100, 100}, NewRecorder())

	s, err := el.Attach()
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if _, err := el.Attach(); !errors.Is(err, ErrSurfaceAttached) {
		t.Errorf("expected ErrSurfaceAttached, got %v", err)
	}
	if el.LiveSurfaces() != 1 {
		t.Errorf("expected one live surface, got %d", el.LiveSurfaces())
	}

	s.Release()
	s.Release()
	if el.LiveSurfaces() != 0 {
		t.Errorf("expected no live surface after Release, got %d", el.LiveSurfaces())
	}

	if _, err := el.Attach(); err != nil {
		t.Errorf("Attach after Release failed: %v", err)
	}
}

func TestPresentAfterRelease(t *testing.T) {
	rec := NewRecorder()
	el := NewElement(Size{10, 10}, rec)
	s, _ := el.Attach()

	if err := s.Present(image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("Present failed: %v", err)
	}
	s.Release()

	if err := s.Present(image.NewRGBA(image.Rect(0, 0, 1, 1))); !errors.Is(err, ErrSurfaceReleased) {
		t.Errorf("expected ErrSurfaceReleased, got %v", err)
	}
	if rec.Frames() != 1 {
		t.Errorf("expected 1 frame, got %d", rec.Frames())
	}
	if rec.Clears() != 1 || rec.Last() != nil {
		t.Errorf("Release should clear the display once")
	}
}

func TestResizeNotifiesOnChange(t *testing.T) {
	el := NewElement(Size{10, 10}, nil)
	ch := make(chan Size, 2)
	sub := el.SubscribeResize(ch)
	defer sub.Unsubscribe()

	el.Resize(Size{10, 10})
	el.Resize(Size{20, 15})

	select {
	case got := <-ch:
		if got != (Size{20, 15}) {
			t.Errorf("unexpected size %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no resize event")
	}
	if len(ch) != 0 {
		t.Errorf("unchanged size must not be published")
	}
	if el.Size() != (Size{20, 15}) {
		t.Errorf("Size failed: got %v", el.Size())
	}
}
