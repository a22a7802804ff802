package waitlist

import (
	"context"
	"fmt"

	"nightlife/internal/models"
)

// ExpiryPolicy decides what happens to a notified entry whose purchase
// window lapsed. It is applied lazily, when the entry is next verified.
type ExpiryPolicy interface {
	Name() string
	Apply(ctx context.Context, store Store, entry *models.WaitlistEntry) error
}

// Policy names accepted by ParsePolicy.
const (
	PolicyKeep    = "keep"
	PolicyExpire  = "expire"
	PolicyRequeue = "requeue"
)

// ParsePolicy maps a configuration value to a policy. An empty name keeps
// lapsed entries untouched.
func ParsePolicy(name string) (ExpiryPolicy, error) {
	switch name {
	case "", PolicyKeep:
		return KeepPolicy{}, nil
	case PolicyExpire:
		return ExpirePolicy{}, nil
	case PolicyRequeue:
		return RequeuePolicy{}, nil
	}
	return nil, fmt.Errorf("unknown waitlist expiry policy %q", name)
}

// KeepPolicy leaves lapsed entries in the notified state.
type KeepPolicy struct{}

func (KeepPolicy) Name() string { return PolicyKeep }

func (KeepPolicy) Apply(context.Context, Store, *models.WaitlistEntry) error { return nil }

// ExpirePolicy marks lapsed entries expired.
type ExpirePolicy struct{}

func (ExpirePolicy) Name() string { return PolicyExpire }

func (ExpirePolicy) Apply(ctx context.Context, store Store, entry *models.WaitlistEntry) error {
	return store.SetWaitlistStatus(ctx, entry.ID, models.WaitlistNotified, models.WaitlistExpired)
}

// RequeuePolicy puts lapsed entries back in line at their original position.
type RequeuePolicy struct{}

func (RequeuePolicy) Name() string { return PolicyRequeue }

func (RequeuePolicy) Apply(ctx context.Context, store Store, entry *models.WaitlistEntry) error {
	return store.SetWaitlistStatus(ctx, entry.ID, models.WaitlistNotified, models.WaitlistWaiting)
}
