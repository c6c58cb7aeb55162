// Package schedule computes the hourly wake-up time of the hedge loop.
package schedule

import (
	"context"
	"time"
)

const DefaultMinute = 10

// NextCheck returns minute past the current hour when that is still ahead of
// now, otherwise minute past the next hour. The result is in now's location.
func NextCheck(now time.Time, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
	// In a repeated DST hour time.Date resolves to the first occurrence, which
	// can sit more than an hour behind now.
	for !target.After(now) {
		target = target.Add(time.Hour)
	}
	return target
}

// SleepUntil blocks until t or until ctx is done.
func SleepUntil(ctx context.Context, t time.Time) error {
	return sleepUntil(ctx, t, time.Now)
}

func sleepUntil(ctx context.Context, t time.Time, now func() time.Time) error {
	d := t.Sub(now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
