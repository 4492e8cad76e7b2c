package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps frames with their receipt time. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the receipt time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current receipt time.
func Now() time.Time {
	return clock.Now()
}
