package reminder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotatorNeverRepeatsForUser(t *testing.T) {
	t.Parallel()
	// Always drawing 0 is the worst case for repetition.
	r := NewRotator(Messages, func(int) int { return 0 })

	prev := ""
	for range 20 {
		msg := r.Next("anon_a")
		assert.NotEqual(t, prev, msg)
		assert.Contains(t, Messages, msg)
		prev = msg
	}
}

func TestRotatorTracksUsersSeparately(t *testing.T) {
	t.Parallel()
	r := NewRotator(Messages, func(int) int { return 2 })

	assert.Equal(t, Messages[2], r.Next("anon_a"))
	assert.Equal(t, Messages[2], r.Next("anon_b"), "a different user may get the same message")
	assert.NotEqual(t, Messages[2], r.Next("anon_a"))
}

func TestRotatorSingleMessage(t *testing.T) {
	t.Parallel()
	r := NewRotator([]string{"only"}, nil)
	assert.Equal(t, "only", r.Next("u"))
	assert.Equal(t, "only", r.Next("u"))
}

func TestRotatorEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", NewRotator(nil, nil).Next("u"))
}

func TestRotatorRandomSource(t *testing.T) {
	t.Parallel()
	r := NewRotator(Messages, nil)
	prev := r.Next("u")
	for range 100 {
		next := r.Next("u")
		assert.NotEqual(t, prev, next)
		prev = next
	}
}
