package clock

import "time"

// Clock allows mocking time.Now() for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Real wraps time.Now().
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}
