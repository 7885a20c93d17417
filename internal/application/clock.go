package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock is the default clock, UTC so timestamps serialize uniformly.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
