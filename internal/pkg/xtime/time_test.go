package xtime

import (
	"testing"
	"time"
)

func TestPeriodContains(t *testing.T) {
	start := time.Date(2024, 1, 17, 10, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	p := Period{Start: start, End: end}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{
			name: "before start",
			at:   start.Add(-time.Nanosecond),
			want: false,
		},
		{
			name: "exactly at start",
			at:   start,
			want: true,
		},
		{
			name: "inside the period",
			at:   start.Add(5 * time.Minute),
			want: true,
		},
		{
			name: "one nanosecond before end",
			at:   end.Add(-time.Nanosecond),
			want: true,
		},
		{
			name: "exactly at end is outside",
			at:   end,
			want: false,
		},
		{
			name: "after end",
			at:   end.Add(time.Minute),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestWindowEnding(t *testing.T) {
	end := time.Date(2024, 1, 17, 10, 0, 0, 0, time.UTC)
	w := WindowEnding(end, 15*time.Minute)

	if !w.Start.Equal(end.Add(-15 * time.Minute)) {
		t.Errorf("Start = %v, want %v", w.Start, end.Add(-15*time.Minute))
	}

	if !w.End.Equal(end) {
		t.Errorf("End = %v, want %v", w.End, end)
	}

	if w.Duration() != 15*time.Minute {
		t.Errorf("Duration = %v, want %v", w.Duration(), 15*time.Minute)
	}

	// The window is half-open: the end instant itself is excluded.
	if w.Contains(end) {
		t.Errorf("window should not contain its end instant")
	}

	if !w.Contains(end.Add(-time.Nanosecond)) {
		t.Errorf("window should contain the instant just before end")
	}
}

func TestNowIsMockable(t *testing.T) {
	fixed := time.Date(2024, 1, 17, 14, 30, 0, 0, time.UTC)

	SetUTCNowFunc(func() time.Time { return fixed })
	defer ResetUTCNowFunc()

	if !Now().Equal(fixed) {
		t.Errorf("Now() = %v, want %v", Now(), fixed)
	}
}

func TestUTCNowReturnsUTC(t *testing.T) {
	if loc := UTCNow().Location(); loc != time.UTC {
		t.Errorf("UTCNow() location = %v, want UTC", loc)
	}
}
