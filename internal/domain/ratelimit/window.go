// Package ratelimit implements the fixed-window request gate over a RateBucket.
package ratelimit

import (
	"time"

	"github.com/medforge/contentgen/internal/domain/model"
)

// Window is a fixed-window limit: at most Limit requests per Length.
type Window struct {
	Limit  int
	Length time.Duration
}

// Normalize clamps the window to usable values.
func (w Window) Normalize() Window {
	if w.Limit < 1 {
		w.Limit = 1
	}
	if w.Length <= 0 {
		w.Length = time.Minute
	}
	return w
}

// Apply advances bucket by one request at now. A nil bucket or an elapsed window starts
// a fresh window with count 1. The returned bucket's count never exceeds the limit.
func Apply(bucket *model.RateBucket, identity string, w Window, now time.Time) (model.RateBucket, model.RateDecision) {
	w = w.Normalize()

	if bucket == nil || !now.Before(bucket.WindowResetAt) {
		next := model.RateBucket{Identity: identity, Count: 1, WindowResetAt: now.Add(w.Length)}
		return next, model.RateDecision{Allowed: true, Remaining: w.Limit - 1}
	}

	next := *bucket
	if next.Count < w.Limit {
		next.Count++
		return next, model.RateDecision{Allowed: true, Remaining: w.Limit - next.Count}
	}

	return next, model.RateDecision{Allowed: false, RetryAfter: next.WindowResetAt.Sub(now)}
}

// Stale reports whether a bucket's window ended before now and can be discarded.
func Stale(bucket model.RateBucket, now time.Time) bool {
	return !now.Before(bucket.WindowResetAt)
}
