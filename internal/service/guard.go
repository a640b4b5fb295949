package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fixflow/backend/internal/locks"
)

const (
	reasonCooldown  = "location and category assigned within cooldown period"
	reasonDuplicate = "open incident already exists for location and category"
	reasonInFlight  = "submission in flight"
)

// Guard suppresses repeat alerts for one location and category. Lock
// serializes check-then-create across replicas.
type Guard struct {
	Store       Store
	Locker      locks.Locker
	Cooldown    time.Duration
	DedupWindow time.Duration
	LockTTL     time.Duration
}

func guardKey(location, category string) string {
	return "guard:" + strings.ToLower(strings.TrimSpace(location)) + ":" + strings.ToLower(strings.TrimSpace(category))
}

// Lock returns a release func, or a duplicate_window outcome when another
// submission for the same pair holds the lock.
func (g *Guard) Lock(ctx context.Context, location, category string) (func(context.Context) error, *Outcome, error) {
	ttl := g.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	release, err := g.Locker.Acquire(ctx, guardKey(location, category), ttl)
	if errors.Is(err, locks.ErrHeld) {
		out := rejected(OutcomeDuplicate, reasonInFlight)
		return nil, &out, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return release, nil, nil
}

// Check runs cooldown first, then the dedup window. A nil outcome means the
// alert may proceed.
func (g *Guard) Check(ctx context.Context, location, category string, now time.Time) (*Outcome, error) {
	recent, err := g.Store.HasRecentAssignment(ctx, location, category, now.Add(-g.Cooldown))
	if err != nil {
		return nil, err
	}
	if recent {
		out := rejected(OutcomeCooldown, reasonCooldown)
		return &out, nil
	}

	existing, err := g.Store.FindOpenIncident(ctx, location, category, now.Add(-g.DedupWindow))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		out := rejected(OutcomeDuplicate, reasonDuplicate)
		out.ExistingIncidentID = existing.ID
		return &out, nil
	}
	return nil, nil
}
