package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Classification stamps come from this clock; tests pin it with SetClock.
var clock clockwork.Clock = clockwork.NewRealClock()

// SetClock swaps the time source. Nil restores the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

func now() time.Time { return clock.Now().UTC() }
