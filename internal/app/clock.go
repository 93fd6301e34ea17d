package app

import (
	"math/rand"
	"time"
)

// Clock supplies the current time. Rule engines use it for date windows.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RandomSource picks messages when several candidates compete for a slot.
type RandomSource interface {
	// Sample returns up to k distinct items, chosen uniformly without replacement.
	Sample(items []string, k int) []string
	// Choose returns one item uniformly at random. items must not be empty.
	Choose(items []string) string
}

// MathRandom is the production RandomSource.
type MathRandom struct{}

func (MathRandom) Sample(items []string, k int) []string {
	if k <= 0 || len(items) == 0 {
		return nil
	}
	if k >= len(items) {
		out := make([]string, len(items))
		copy(out, items)
		return out
	}
	idx := rand.Perm(len(items))[:k]
	out := make([]string, 0, k)
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out
}

func (MathRandom) Choose(items []string) string {
	return items[rand.Intn(len(items))]
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
