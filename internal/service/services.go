package service

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/classifier"
	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/locks"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/notify"
	"github.com/fixflow/backend/internal/ratelimit"
)

type Deps struct {
	Store      Store
	Limiter    ratelimit.Limiter
	Locker     locks.Locker
	Classifier classifier.Classifier
	Sink       notify.Sink
	Metrics    *metrics.Metrics
	Config     config.Dispatch
	Logger     zerolog.Logger
	Now        Clock
	LockTTL    time.Duration
}

type Services struct {
	Directory *Directory
	Incidents *Incidents
	Scheduler *Scheduler
	Engine    *Engine
	Escalator *Escalator
	Aging     *Aging
	Notifier  *notify.Dispatcher
}

// NewServices wires the dispatch components over one store, limiter and
// locker so every entry point shares the same capacity bookkeeping.
func NewServices(d Deps) *Services {
	cfg := d.Config
	s := &Services{
		Notifier: &notify.Dispatcher{
			Sink:    d.Sink,
			Logger:  d.Logger.With().Str("component", "notify").Logger(),
			Metrics: d.Metrics,
			Now:     d.Now,
		},
	}
	s.Directory = &Directory{Store: d.Store, MaxConcurrent: cfg.DefaultMaxConcurrent}
	s.Incidents = &Incidents{Store: d.Store, Metrics: d.Metrics, Logger: d.Logger, Now: d.Now}
	s.Scheduler = &Scheduler{
		Store:           d.Store,
		Incidents:       s.Incidents,
		DefaultDuration: cfg.DefaultDurationMinutes,
		Metrics:         d.Metrics,
		Logger:          d.Logger,
		Now:             d.Now,
	}
	s.Engine = &Engine{
		Store:     d.Store,
		Directory: s.Directory,
		Scheduler: s.Scheduler,
		Gate:      NewQualityGate(cfg),
		Guard: &Guard{
			Store:       d.Store,
			Locker:      d.Locker,
			Cooldown:    cfg.Cooldown(),
			DedupWindow: cfg.DedupWindow(),
			LockTTL:     d.LockTTL,
		},
		Limiter:    d.Limiter,
		Classifier: d.Classifier,
		Notifier:   s.Notifier,
		Metrics:    d.Metrics,
		Config:     cfg,
		Logger:     d.Logger.With().Str("component", "engine").Logger(),
		Now:        d.Now,
	}
	s.Escalator = &Escalator{
		Store:     d.Store,
		Directory: s.Directory,
		Scheduler: s.Scheduler,
		Locker:    d.Locker,
		Notifier:  s.Notifier,
		Metrics:   d.Metrics,
		Config:    cfg,
		Logger:    d.Logger.With().Str("component", "escalation").Logger(),
		Now:       d.Now,
		LockTTL:   d.LockTTL,
	}
	s.Aging = &Aging{Store: d.Store, SLAMinutes: cfg.SLAMinutes, Now: d.Now}
	return s
}
