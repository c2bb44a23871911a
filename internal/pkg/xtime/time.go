package xtime

import "time"

func UTCNow() time.Time {
	return time.Now().UTC()
}

var utcNowFunc = UTCNow

// SetUTCNowFunc sets the function used to get current UTC time.
// This is primarily used for testing to mock the current time.
func SetUTCNowFunc(f func() time.Time) {
	utcNowFunc = f
}

// ResetUTCNowFunc resets the UTC now function to the default implementation.
// This should be called in test cleanup to avoid affecting other tests.
func ResetUTCNowFunc() {
	utcNowFunc = UTCNow
}

// Now returns the current UTC time through the mockable clock.
func Now() time.Time {
	return utcNowFunc()
}

// Period represents a time period with Start (inclusive) and End (exclusive).
// The period is a half-open interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the half-open interval.
// A time exactly equal to End is outside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Duration returns End - Start.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// WindowEnding returns the period [end-size, end).
func WindowEnding(end time.Time, size time.Duration) Period {
	return Period{Start: end.Add(-size), End: end}
}
