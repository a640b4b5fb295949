package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryLimiter is the single-process fallback used when REDIS_URL is empty.
type MemoryLimiter struct {
	mu     sync.Mutex
	limits Limits
	counts map[string]int
	now    func() time.Time
}

func NewMemoryLimiter(limits Limits) *MemoryLimiter {
	return &MemoryLimiter{limits: limits, counts: map[string]int{}, now: time.Now}
}

func (l *MemoryLimiter) Check(_ context.Context, technicianID string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	return decide(l.limits, l.counts[technicianKey(technicianID, now)], l.counts[systemKey(now)]), nil
}

func (l *MemoryLimiter) Reserve(_ context.Context, technicianID string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	tk, sk := technicianKey(technicianID, now), systemKey(now)
	d := decide(l.limits, l.counts[tk], l.counts[sk])
	if !d.Allowed {
		return d, nil
	}
	l.counts[tk]++
	l.counts[sk]++
	d.TechnicianCount = l.counts[tk]
	d.SystemCount = l.counts[sk]
	return d, nil
}

func (l *MemoryLimiter) Release(_ context.Context, technicianID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, k := range []string{technicianKey(technicianID, now), systemKey(now)} {
		if l.counts[k] > 0 {
			l.counts[k]--
		}
	}
	return nil
}

// evict drops counters from previous days.
func (l *MemoryLimiter) evict(now time.Time) {
	suffix := ":" + dayStamp(now)
	for k := range l.counts {
		if !strings.HasSuffix(k, suffix) {
			delete(l.counts, k)
		}
	}
}
