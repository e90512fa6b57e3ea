// Package stack holds the navigation state of an ordered slice series.
package stack

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// ErrEmptyStack is returned when a session is opened without locators
var ErrEmptyStack = errors.New("stack has no slices")

// IndexOutOfRangeError reports a seek outside the series
type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("slice index %d out of range [0, %d]", e.Index, e.Len-1)
}

// IndexChange is published whenever the current slice changes
type IndexChange struct {
	Index   int
	Locator string
}

// Session is a fixed, ordered series of slice locators with a current position.
// The index is always within [0, Len()-1].
type Session struct {
	mu       sync.RWMutex
	locators []string
	index    int

	feed  event.FeedOf[IndexChange]
	scope event.SubscriptionScope
}

// Open starts a session at the first slice
func Open(locators []string) (*Session, error) {
	if len(locators) == 0 {
		return nil, ErrEmptyStack
	}
	return &Session{locators: slices.Clone(locators)}, nil
}

// Len returns the number of slices
func (s *Session) Len() int {
	return len(s.locators)
}

// Index returns the current position
func (s *Session) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Current returns the locator at the current position
func (s *Session) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locators[s.index]
}

// At returns the locator at position i
func (s *Session) At(i int) (string, error) {
	if i < 0 || i >= len(s.locators) {
		return "", &IndexOutOfRangeError{Index: i, Len: len(s.locators)}
	}
	return s.locators[i], nil
}

// Locators returns a copy of the ordered series
func (s *Session) Locators() []string {
	return slices.Clone(s.locators)
}

// Seek jumps to position i
func (s *Session) Seek(i int) error {
	if i < 0 || i >= len(s.locators) {
		return &IndexOutOfRangeError{Index: i, Len: len(s.locators)}
	}
	s.moveTo(i)
	return nil
}

// Step moves by delta and stops at either end of the series; it never wraps
func (s *Session) Step(delta int) int {
	s.mu.Lock()
	last := len(s.locators) - 1
	target := s.index
	switch {
	case delta > last-s.index:
		target = last
	case delta < -s.index:
		target = 0
	default:
		target += delta
	}
	change, moved := s.setLocked(target)
	s.mu.Unlock()

	if moved {
		s.feed.Send(change)
	}
	return target
}

func (s *Session) moveTo(i int) {
	s.mu.Lock()
	change, moved := s.setLocked(i)
	s.mu.Unlock()

	// Send blocks until every subscriber has taken the value, so it runs unlocked
	if moved {
		s.feed.Send(change)
	}
}

func (s *Session) setLocked(i int) (IndexChange, bool) {
	if s.index == i {
		return IndexChange{}, false
	}
	s.index = i
	return IndexChange{Index: i, Locator: s.locators[i]}, true
}

// Subscribe delivers index changes to ch until the subscription or the session is closed.
// Subscribers should use a buffered channel and drain it promptly.
func (s *Session) Subscribe(ch chan<- IndexChange) event.Subscription {
	return s.scope.Track(s.feed.Subscribe(ch))
}

// Close ends all subscriptions
func (s *Session) Close() {
	s.scope.Close()
}
