package model

import (
	"encoding/json"
	"time"
)

// CacheEntry is a content-addressed memo of one generation call.
type CacheEntry struct {
	Key            string          `json:"key"              db:"key"`
	Mode           Mode            `json:"mode"             db:"mode"`
	Context        json.RawMessage `json:"context"          db:"context"`
	Response       json.RawMessage `json:"response"         db:"response"`
	Model          string          `json:"model"            db:"model"`
	TokensUsed     int             `json:"tokens_used"      db:"tokens_used"`
	Cost           float64         `json:"cost"             db:"cost"`
	Hits           int             `json:"hits"             db:"hits"`
	CreatedAt      time.Time       `json:"created_at"       db:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed_at" db:"last_accessed_at"`
	ExpiresAt      time.Time       `json:"expires_at"       db:"expires_at"`
}

// Expired reports whether the entry is logically absent at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

// RateBucket is the fixed-window counter for one identity.
type RateBucket struct {
	Identity      string    `json:"identity"`
	Count         int       `json:"count"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// RateDecision is the outcome of a rate-limit check.
type RateDecision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}
