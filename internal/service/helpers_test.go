package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/locks"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
	"github.com/fixflow/backend/internal/ratelimit"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (s *recordingSink) Notify(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) ofType(kind string) []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Notification
	for _, n := range s.sent {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

type fixedClassifier int

func (f fixedClassifier) Classify(context.Context, models.Report) (int, error) {
	return int(f), nil
}

type harness struct {
	store     *db.MemoryStore
	locker    *locks.MemoryLocker
	sink      *recordingSink
	engine    *Engine
	escalator *Escalator
	scheduler *Scheduler
	incidents *Incidents
	directory *Directory
	aging     *Aging

	mu  sync.Mutex
	now time.Time
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func newHarness(t *testing.T, cfg config.Dispatch) *harness {
	t.Helper()
	h := &harness{
		store:  db.NewMemoryStore(),
		locker: locks.NewMemoryLocker(),
		sink:   &recordingSink{},
		now:    time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	svc := NewServices(Deps{
		Store:      h.store,
		Limiter:    ratelimit.NewMemoryLimiter(ratelimit.Limits{PerTechnician: cfg.MaxPerTechnicianPerDay, SystemWide: cfg.MaxSystemWidePerDay}),
		Locker:     h.locker,
		Classifier: fixedClassifier(2),
		Sink:       h.sink,
		Config:     cfg,
		Logger:     zerolog.Nop(),
		Now:        h.clock,
	})
	h.directory = svc.Directory
	h.incidents = svc.Incidents
	h.scheduler = svc.Scheduler
	h.engine = svc.Engine
	h.escalator = svc.Escalator
	h.aging = svc.Aging
	return h
}

func (h *harness) addTechnician(t *testing.T, name, spec string, current, max int) models.Technician {
	t.Helper()
	created, err := h.store.CreateTechnician(context.Background(), models.Technician{
		ID:                 uuid.NewString(),
		Name:               name,
		Specialization:     spec,
		Active:             true,
		Available:          true,
		CurrentAssignments: current,
		MaxConcurrent:      max,
	})
	if err != nil {
		t.Fatalf("add technician: %v", err)
	}
	return created
}

func (h *harness) addUser(role string) models.User {
	u := models.User{ID: uuid.NewString(), Name: role + "-user", Role: role}
	h.store.AddUser(u)
	return u
}

func (h *harness) technician(t *testing.T, id string) models.Technician {
	t.Helper()
	tech, err := h.store.GetTechnician(context.Background(), id)
	if err != nil {
		t.Fatalf("get technician: %v", err)
	}
	return tech
}

func (h *harness) incident(t *testing.T, id string) models.Incident {
	t.Helper()
	inc, err := h.store.GetIncident(context.Background(), id)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	return inc
}

func floatPtr(v float64) *float64 { return &v }
