package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/models"
	"github.com/fixflow/backend/internal/notify"
	"github.com/fixflow/backend/internal/ratelimit"
)

func waterAlert() models.Alert {
	return models.Alert{Location: "Block A", Category: "water", DaysToFailure: floatPtr(5), Confidence: floatPtr(90)}
}

func TestSubmitAlertAssignsPlumber(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	plumber := h.addTechnician(t, "pat", "Plumbing", 0, 2)
	submitted := h.clock()

	out, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !out.Accepted() || out.TechnicianID != plumber.ID {
		t.Fatalf("expected assignment to plumber, got %+v", out)
	}
	if got := h.technician(t, plumber.ID).CurrentAssignments; got != 1 {
		t.Fatalf("expected 1 current assignment, got %d", got)
	}

	inc := h.incident(t, out.IncidentID)
	if inc.Priority != 5 {
		t.Fatalf("expected priority 5, got %d", inc.Priority)
	}
	if inc.Status != models.IncidentInProgress {
		t.Fatalf("expected in-progress, got %s", inc.Status)
	}
	if inc.SLADeadline == nil || !inc.SLADeadline.Equal(submitted.Add(15*time.Minute)) {
		t.Fatalf("expected deadline %v, got %v", submitted.Add(15*time.Minute), inc.SLADeadline)
	}
	if !out.SLADeadline.Equal(*inc.SLADeadline) {
		t.Fatalf("outcome deadline differs from stored deadline")
	}

	sc, err := h.store.GetSchedule(context.Background(), out.ScheduleID)
	if err != nil {
		t.Fatalf("work slot missing: %v", err)
	}
	if !sc.ScheduledTime.Equal(submitted.Add(5*time.Minute)) || sc.DurationMinutes != 30 || sc.HoldsCapacity {
		t.Fatalf("unexpected work slot %+v", sc)
	}
	if n := h.sink.ofType(notify.TypeAssignment); len(n) != 1 || n[0].UserID != plumber.ID {
		t.Fatalf("expected one assignment notification to plumber, got %+v", n)
	}
}

func TestSubmitAlertCooldownWithinDay(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	h.addTechnician(t, "pat", "Plumbing", 0, 2)

	first, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil || !first.Accepted() {
		t.Fatalf("first submit: %+v %v", first, err)
	}
	h.advance(time.Hour)

	second, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.Kind != OutcomeCooldown {
		t.Fatalf("expected cooldown, got %+v", second)
	}

	open, _ := h.store.ListIncidents(context.Background(), models.IncidentFilter{})
	if len(open) != 1 {
		t.Fatalf("expected one incident, got %d", len(open))
	}
}

func TestSubmitAlertQualityGate(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	h.addTechnician(t, "pat", "Plumbing", 0, 2)

	cases := []models.Alert{
		{Location: "Block A", Category: "water", DaysToFailure: floatPtr(25)},
		{Location: "Block A", Category: "water", DaysToFailure: floatPtr(0), Confidence: floatPtr(79)},
		{Location: "Block A", Category: "water", DaysToFailure: floatPtr(21), Confidence: floatPtr(100)},
		{Location: "Block A", Category: "water", DaysToFailure: floatPtr(1), ModelR2: floatPtr(0.69)},
	}
	for i, a := range cases {
		out, err := h.engine.SubmitAlert(context.Background(), a)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if out.Kind != OutcomeQualityGate || out.IncidentID != "" {
			t.Fatalf("case %d: expected quality gate rejection, got %+v", i, out)
		}
	}
	all, _ := h.store.ListIncidents(context.Background(), models.IncidentFilter{})
	if len(all) != 0 {
		t.Fatalf("gate rejections must not create incidents")
	}
}

func TestSubmitAlertSkipsTechnicianAtCapacity(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	full := h.addTechnician(t, "full", "Plumbing", 2, 2)
	spare := h.addTechnician(t, "spare", "General", 0, 2)

	out, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.TechnicianID != spare.ID {
		t.Fatalf("expected fallback technician, got %+v", out)
	}
	if got := h.technician(t, full.ID).CurrentAssignments; got != 2 {
		t.Fatalf("full technician changed: %d", got)
	}
}

func TestSubmitAlertSystemRateLimit(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	for i := 0; i < 8; i++ {
		h.addTechnician(t, fmt.Sprintf("tech-%d", i), "Electrical", 0, 2)
	}

	for i := 0; i < 15; i++ {
		a := models.Alert{Location: fmt.Sprintf("Room %d", i), Category: "electrical", DaysToFailure: floatPtr(3)}
		out, err := h.engine.SubmitAlert(context.Background(), a)
		if err != nil || !out.Accepted() {
			t.Fatalf("alert %d: expected assignment, got %+v %v", i, out, err)
		}
	}

	out, err := h.engine.SubmitAlert(context.Background(), models.Alert{Location: "Room 99", Category: "electrical", DaysToFailure: floatPtr(3)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Kind != OutcomeRateLimited || out.Reason != ratelimit.ReasonSystemLimit {
		t.Fatalf("expected system rate limit, got %+v", out)
	}
	inc := h.incident(t, out.IncidentID)
	if inc.AssignedTo != nil || inc.Status != models.IncidentNew {
		t.Fatalf("denied incident must stay unassigned, got %+v", inc)
	}
}

func TestSubmitAlertTechnicianRateLimit(t *testing.T) {
	cfg := config.DefaultDispatch()
	cfg.MaxPerTechnicianPerDay = 1
	h := newHarness(t, cfg)
	h.addTechnician(t, "solo", "IT", 0, 5)

	if out, _ := h.engine.SubmitAlert(context.Background(), models.Alert{Location: "Lab 1", Category: "it", DaysToFailure: floatPtr(2)}); !out.Accepted() {
		t.Fatalf("expected first alert assigned, got %+v", out)
	}
	out, err := h.engine.SubmitAlert(context.Background(), models.Alert{Location: "Lab 2", Category: "it", DaysToFailure: floatPtr(2)})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Kind != OutcomeRateLimited || out.Reason != ratelimit.ReasonTechnicianLimit {
		t.Fatalf("expected technician rate limit, got %+v", out)
	}
}

func TestSubmitAlertDedupReportsExistingIncident(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())

	first, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Kind != OutcomeNoTechnician || first.IncidentID == "" {
		t.Fatalf("expected unassigned incident, got %+v", first)
	}

	h.advance(30 * time.Hour)
	second, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if second.Kind != OutcomeDuplicate || second.ExistingIncidentID != first.IncidentID {
		t.Fatalf("expected duplicate of %s, got %+v", first.IncidentID, second)
	}

	h.advance(20 * time.Hour)
	third, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if third.Kind != OutcomeNoTechnician || third.IncidentID == first.IncidentID {
		t.Fatalf("expected a new incident after the window, got %+v", third)
	}
}

func TestSubmitAlertInFlightLock(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	h.addTechnician(t, "pat", "Plumbing", 0, 2)

	release, err := h.locker.Acquire(context.Background(), guardKey("block a", "WATER"), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release(context.Background())

	out, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Kind != OutcomeDuplicate || out.Reason != reasonInFlight {
		t.Fatalf("expected in-flight rejection, got %+v", out)
	}
}

func TestSubmitAlertValidation(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	_, err := h.engine.SubmitAlert(context.Background(), models.Alert{Category: "water"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitAlertRequiresDaysToFailure(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	plumber := h.addTechnician(t, "pat", "Plumbing", 0, 2)

	_, err := h.engine.SubmitAlert(context.Background(), models.Alert{
		Location: "Block A", Category: "water", Confidence: floatPtr(95),
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	all, _ := h.store.ListIncidents(context.Background(), models.IncidentFilter{})
	if len(all) != 0 {
		t.Fatalf("alert without days_to_failure created %d incidents", len(all))
	}
	if got := h.technician(t, plumber.ID).CurrentAssignments; got != 0 {
		t.Fatalf("capacity consumed: %d", got)
	}
	if n := h.sink.ofType(notify.TypeAssignment); len(n) != 0 {
		t.Fatalf("unexpected notifications %+v", n)
	}

	// reports carry no prediction horizon
	out, err := h.engine.SubmitAlert(context.Background(), models.Alert{
		Location: "Block A", Category: "water", Source: models.SourceReport,
	})
	if err != nil || !out.Accepted() {
		t.Fatalf("report-sourced alert: %+v %v", out, err)
	}
}

// capacityLossStore fails assignments to one technician as if a concurrent
// writer had taken their last slot.
type capacityLossStore struct {
	*db.MemoryStore
	lose string
}

func (s capacityLossStore) AssignIncident(ctx context.Context, req models.AssignRequest) (models.Incident, error) {
	if req.TechnicianID == s.lose {
		return models.Incident{}, apperr.New(apperr.KindCapacityExceeded, "incidents.assign", "technician at capacity")
	}
	return s.MemoryStore.AssignIncident(ctx, req)
}

func TestSubmitAlertNoTechnicianAfterLimitThenCapacity(t *testing.T) {
	cfg := config.DefaultDispatch()
	cfg.MaxPerTechnicianPerDay = 1
	h := newHarness(t, cfg)
	h.addTechnician(t, "pat", "Plumbing", 0, 5)

	first, err := h.engine.SubmitAlert(context.Background(), waterAlert())
	if err != nil || !first.Accepted() {
		t.Fatalf("first submit: %+v %v", first, err)
	}

	general := h.addTechnician(t, "gale", "General", 0, 5)
	h.engine.Store = capacityLossStore{MemoryStore: h.store, lose: general.ID}

	a := waterAlert()
	a.Location = "Block B"
	out, err := h.engine.SubmitAlert(context.Background(), a)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if out.Kind != OutcomeNoTechnician {
		t.Fatalf("expected no_technician, got %+v", out)
	}
	d, err := h.engine.Limiter.Check(context.Background(), general.ID)
	if err != nil || d.TechnicianCount != 0 {
		t.Fatalf("reservation for %s not released: %+v %v", general.ID, d, err)
	}
}

func TestConcurrentAlertsRespectCapacity(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	only := h.addTechnician(t, "only", "Electrical", 0, 2)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		assigned int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.engine.SubmitAlert(context.Background(), models.Alert{
				Location: fmt.Sprintf("Hall %d", i), Category: "electrical", DaysToFailure: floatPtr(1),
			})
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			if out.Accepted() {
				mu.Lock()
				assigned++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if assigned != 2 {
		t.Fatalf("expected exactly 2 assignments, got %d", assigned)
	}
	if got := h.technician(t, only.ID).CurrentAssignments; got != 2 {
		t.Fatalf("capacity invariant broken: %d", got)
	}
}

func TestProcessAlertsContinuesPastFailures(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	h.addTechnician(t, "pat", "Plumbing", 0, 2)

	summary := h.engine.ProcessAlerts(context.Background(), []models.Alert{
		waterAlert(),
		{Location: "", Category: "water"},
		{Location: "Block C", Category: "water", DaysToFailure: floatPtr(40)},
		{Location: "Block D", Category: "water", DaysToFailure: floatPtr(2)},
	})
	if summary.Assigned != 2 || summary.Failed != 2 || summary.Errors != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Results) != 4 || summary.Results[1].Error == "" {
		t.Fatalf("expected per-alert results, got %+v", summary.Results)
	}
	if summary.Reasons[OutcomeQualityGate] != 1 || summary.Reasons[OutcomeAssigned] != 2 {
		t.Fatalf("unexpected reasons %v", summary.Reasons)
	}
}

func TestReportIncidentUsesGeneralMode(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	busy := h.addTechnician(t, "busy", "Electrical", 1, 3)
	idle := h.addTechnician(t, "idle", "Electrical", 0, 3)
	reporter := h.addUser(models.RoleReporter)

	out, err := h.engine.ReportIncident(context.Background(), models.Report{
		Title:      "Sparking socket",
		Location:   "Hostel B",
		Category:   "electrical",
		ReportedBy: reporter.ID,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if out.TechnicianID != idle.ID {
		t.Fatalf("expected least loaded technician %s, got %s (busy=%s)", idle.ID, out.TechnicianID, busy.ID)
	}
	inc := h.incident(t, out.IncidentID)
	if inc.Source != models.SourceReport || inc.ReportedBy == nil || *inc.ReportedBy != reporter.ID {
		t.Fatalf("unexpected incident %+v", inc)
	}
}
