package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/http/handlers"
	"github.com/fixflow/backend/internal/http/middleware"
	"github.com/fixflow/backend/internal/locks"
	"github.com/fixflow/backend/internal/metrics"
	"github.com/fixflow/backend/internal/notify"
	"github.com/fixflow/backend/internal/ratelimit"
	"github.com/fixflow/backend/internal/service"
)

func newTestRouter(t *testing.T, adminKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	cfg := config.Config{AdminKey: adminKey, CORSAllowed: "*", Dispatch: config.DefaultDispatch()}
	store := db.NewMemoryStore()
	svc := service.NewServices(service.Deps{
		Store:   store,
		Limiter: ratelimit.NewMemoryLimiter(ratelimit.Limits{PerTechnician: 3, SystemWide: 15}),
		Locker:  locks.NewMemoryLocker(),
		Sink:    notify.LogSink{Logger: zerolog.Nop()},
		Metrics: m,
		Config:  cfg.Dispatch,
		Logger:  zerolog.Nop(),
	})
	h := &handlers.Handler{
		Store:     store,
		Directory: svc.Directory,
		Incidents: svc.Incidents,
		Scheduler: svc.Scheduler,
		Engine:    svc.Engine,
		Escalator: svc.Escalator,
		Aging:     svc.Aging,
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}
	return Router(cfg, h, reg, zerolog.Nop())
}

func TestAdminRoutesRequireKey(t *testing.T) {
	r := newTestRouter(t, "secret")

	req, _ := http.NewRequest(http.MethodPost, "/api/escalations/sweep", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req, _ = http.NewRequest(http.MethodPost, "/api/escalations/sweep", nil)
	req.Header.Set("X-Admin-Key", "secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req, _ = http.NewRequest(http.MethodGet, "/api/technicians", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("public route should not need the key, got %d", w.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	r := newTestRouter(t, "")

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(middleware.RequestIDHeader); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(middleware.RequestIDHeader); !strings.HasPrefix(got, "req_") {
		t.Fatalf("expected generated request id, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, "")

	body := strings.NewReader(`{"location":"Block C","category":"it","days_to_failure":99}`)
	req, _ := http.NewRequest(http.MethodPost, "/api/alerts", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected gate refusal with 200, got %d", w.Code)
	}

	req, _ = http.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `outcome="quality_gate"`) {
		t.Fatalf("expected alert outcome counter in metrics output")
	}
}
