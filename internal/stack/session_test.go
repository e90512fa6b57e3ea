package stack

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func newSession(t *testing.T, n int) *Session {
	t.Helper()
	locators := make([]string, n)
	for i := range locators {
		locators[i] = string(rune('a' + i))
	}
	s, err := Open(locators)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestOpenEmpty(t *testing.T) {
	if _, err := Open(nil); !errors.Is(err, ErrEmptyStack) {
		t.Errorf("expected ErrEmptyStack, got %v", err)
	}
	if _, err := Open([]string{}); !errors.Is(err, ErrEmptyStack) {
		t.Errorf("expected ErrEmptyStack, got %v", err)
	}
}

func TestOpenStartsAtFirstSlice(t *testing.T) {
	s := newSession(t, 3)
	if s.Index() != 0 || s.Current() != "a" {
		t.Errorf("expected index 0 at a, got %d at %s", s.Index(), s.Current())
	}
}

func TestStepClamps(t *testing.T) {
	tests := []struct {
		name  string
		start int
		delta int
		want  int
	}{
		{"forward", 0, 1, 1},
		{"past end", 3, 5, 4},
		{"at end", 4, 1, 4},
		{"before start", 2, -10, 0},
		{"at start", 0, -1, 0},
		{"zero", 2, 0, 2},
		{"max int", 1, math.MaxInt, 4},
		{"min int", 1, math.MinInt, 0},
		{"max int at end", 4, math.MaxInt, 4},
		{"min int at start", 0, math.MinInt, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, 5)
			if err := s.Seek(tt.start); err != nil {
				t.Fatalf("Seek failed: %v", err)
			}
			if got := s.Step(tt.delta); got != tt.want {
				t.Errorf("Step(%d) failed: expected %d, got %d", tt.delta, tt.want, got)
			}
			if s.Index() != tt.want {
				t.Errorf("Index failed: expected %d, got %d", tt.want, s.Index())
			}
		})
	}
}

func TestConcurrentStepsAreNotLost(t *testing.T) {
	s := newSession(t, 200)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Step(1)
		}()
	}
	wg.Wait()

	if s.Index() != 100 {
		t.Errorf("expected index 100 after 100 steps, got %d", s.Index())
	}
}

func TestSeekOutOfRange(t *testing.T) {
	s := newSession(t, 3)

	for _, i := range []int{-1, 3, 100} {
		err := s.Seek(i)
		var rangeErr *IndexOutOfRangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("Seek(%d): expected IndexOutOfRangeError, got %v", i, err)
		}
		if rangeErr.Index != i || rangeErr.Len != 3 {
			t.Errorf("unexpected error fields %+v", rangeErr)
		}
	}
	if s.Index() != 0 {
		t.Errorf("failed seek must not move the index")
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := newSession(t, 4)
	ch := make(chan IndexChange, 4)
	sub := s.Subscribe(ch)
	defer sub.Unsubscribe()

	s.Step(1)
	s.Step(0) // no change, no event
	_ = s.Seek(3)

	want := []IndexChange{{1, "b"}, {3, "d"}}
	for _, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("expected %+v, got %+v", w, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %+v", w)
		}
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected event %+v", extra)
	default:
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := newSession(t, 2)
	ch := make(chan IndexChange, 1)
	sub := s.Subscribe(ch)

	s.Close()

	select {
	case <-sub.Err():
	case <-time.After(time.Second):
		t.Fatalf("subscription was not closed")
	}

	// no subscribers left, so this must not block
	s.Step(1)
	if len(ch) != 0 {
		t.Errorf("closed subscription received an event")
	}
}

func TestLocatorsIsCopy(t *testing.T) {
	s := newSession(t, 2)
	l := s.Locators()
	l[0] = "changed"
	if s.Current() != "a" {
		t.Errorf("Locators must return a copy")
	}
}
