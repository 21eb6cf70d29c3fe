// Package job holds queue policies that are independent of storage.
package job

import (
	"errors"
	"time"
)

// ErrInvalidLease indicates the configured processing lease is not positive.
var ErrInvalidLease = errors.New("processing lease must be positive")

// minHeartbeat bounds how often a worker extends a lease.
const minHeartbeat = time.Second

// LeasePolicy decides how long a claimed job stays owned by a worker and when ownership lapses.
type LeasePolicy struct {
	lease       time.Duration
	maxAttempts int
}

// NewLeasePolicy constructs a LeasePolicy. maxAttempts below 1 is treated as 1.
func NewLeasePolicy(lease time.Duration, maxAttempts int) (*LeasePolicy, error) {
	if lease <= 0 {
		return nil, ErrInvalidLease
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &LeasePolicy{lease: lease.Truncate(time.Second), maxAttempts: maxAttempts}, nil
}

// Lease returns the lease duration, at least one second.
func (p *LeasePolicy) Lease() time.Duration {
	if p == nil {
		return 0
	}
	if p.lease < time.Second {
		return time.Second
	}
	return p.lease
}

// Seconds returns the lease as whole seconds for SQL interval arithmetic.
func (p *LeasePolicy) Seconds() int {
	return int(p.Lease() / time.Second)
}

// MaxAttempts returns how many claims a job gets before a lapsed lease fails it.
func (p *LeasePolicy) MaxAttempts() int {
	if p == nil {
		return 1
	}
	return p.maxAttempts
}

// HeartbeatInterval is a third of the lease so two missed beats still leave the job owned.
func (p *LeasePolicy) HeartbeatInterval() time.Duration {
	iv := p.Lease() / 3
	if iv < minHeartbeat {
		return minHeartbeat
	}
	return iv
}

// ExpiresAt returns the lease deadline for a claim or heartbeat at now.
func (p *LeasePolicy) ExpiresAt(now time.Time) time.Time {
	return now.Add(p.Lease())
}

// ReclaimAction is what happens to a job whose lease lapsed.
type ReclaimAction string

const (
	// ReclaimRequeue returns the job to pending.
	ReclaimRequeue ReclaimAction = "requeue"
	// ReclaimFail marks the job failed.
	ReclaimFail ReclaimAction = "fail"
)

// Reclaim decides the fate of a job with a lapsed lease given the attempts already made.
func (p *LeasePolicy) Reclaim(attempts, maxAttempts int) ReclaimAction {
	if maxAttempts < 1 {
		maxAttempts = p.MaxAttempts()
	}
	if attempts >= maxAttempts {
		return ReclaimFail
	}
	return ReclaimRequeue
}
