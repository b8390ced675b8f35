package limb

import "time"

// Clock abstracts wall-clock time so timed sequences (KeepStep, LooseAll,
// Reset) are testable without real sleeping. The production clock is the
// system clock; tests advance a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
