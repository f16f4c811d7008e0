// Package reminder delivers the daily journaling nudge.
package reminder

import (
	"math/rand/v2"
	"sync"
)

// Messages is the pool reminders rotate through.
var Messages = []string{
	"Georgia's ready when you are. What happened today?",
	"Your story from today is waiting to be told.",
	"One question. A few minutes. Something worth keeping.",
	"Ready when you are. The light's on.",
	"Don't let today get away. Georgia's listening.",
}

// Rotator picks reminder messages at random, never handing the same user the
// same message twice in a row.
type Rotator struct {
	messages []string
	intn     func(n int) int

	mu   sync.Mutex
	last map[string]int
}

// NewRotator creates a Rotator over messages. A nil intn uses math/rand/v2.
func NewRotator(messages []string, intn func(n int) int) *Rotator {
	if intn == nil {
		intn = rand.IntN
	}
	return &Rotator{
		messages: append([]string(nil), messages...),
		intn:     intn,
		last:     make(map[string]int),
	}
}

// Next returns the next message for userID.
func (r *Rotator) Next(userID string) string {
	if len(r.messages) == 0 {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.intn(len(r.messages))
	if last, ok := r.last[userID]; ok && idx == last && len(r.messages) > 1 {
		// Shift to a different slot instead of redrawing so the draw count stays bounded.
		idx = (idx + 1 + r.intn(len(r.messages)-1)) % len(r.messages)
	}
	r.last[userID] = idx
	return r.messages[idx]
}
