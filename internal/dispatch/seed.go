// ABOUTME: One-shot slot for a seed message supplied by an external trigger
// ABOUTME: At most one seed is outstanding; Take consumes it so re-delivery cannot re-arm

package dispatch

import (
	"strings"
	"sync"
)

// Seed holds at most one pending seed message.
type Seed struct {
	mu   sync.Mutex
	text string
}

// Set stores text as the outstanding seed, replacing any previous one.
// Blank text clears the slot.
func (s *Seed) Set(text string) {
	s.mu.Lock()
	s.text = strings.TrimSpace(text)
	s.mu.Unlock()
}

// Take returns the outstanding seed and empties the slot.
func (s *Seed) Take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.text
	s.text = ""
	return text, text != ""
}

// Pending reports whether a seed is waiting.
func (s *Seed) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text != ""
}
