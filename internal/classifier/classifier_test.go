package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fixflow/backend/internal/models"
)

func TestClamp(t *testing.T) {
	cases := map[int]int{-2: 1, 0: 1, 1: 1, 3: 3, 5: 5, 9: 5}
	for in, want := range cases {
		if got := Clamp(in); got != want {
			t.Fatalf("Clamp(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestMockClassifierStable(t *testing.T) {
	r := models.Report{Title: "Sparks from socket", Description: "room 204", Category: "electrical", Location: "Hostel A"}
	first, err := MockClassifier{}.Classify(context.Background(), r)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := MockClassifier{}.Classify(context.Background(), r)
		if again != first {
			t.Fatalf("mock classifier not stable: %d vs %d", again, first)
		}
	}
	if first < MinPriority || first > MaxPriority {
		t.Fatalf("priority out of range: %d", first)
	}
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body classifyRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		priority := 2
		if body.Category == "electrical" {
			priority = 8
		}
		_ = json.NewEncoder(w).Encode(classifyResponse{Priority: priority})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second)
	got, err := c.Classify(context.Background(), models.Report{Title: "x", Category: "electrical"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != MaxPriority {
		t.Fatalf("expected clamped priority 5, got %d", got)
	}
}

func TestHTTPClassifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, time.Second)
	if _, err := c.Classify(context.Background(), models.Report{Title: "x"}); err == nil {
		t.Fatalf("expected error on 400")
	}
}
