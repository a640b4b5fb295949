package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/models"
)

func TestDirectoryNormalizesDefaults(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	raw, err := h.store.CreateTechnician(context.Background(), models.Technician{ID: uuid.NewString(), Name: "legacy", Active: true, Available: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := h.directory.Get(context.Background(), raw.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MaxConcurrent != 2 || got.Specialization != "General" {
		t.Fatalf("defaults not applied: %+v", got)
	}

	list, err := h.directory.List(context.Background())
	if err != nil || len(list) != 1 || list[0].MaxConcurrent != 2 {
		t.Fatalf("list defaults not applied: %+v %v", list, err)
	}
}

func TestDirectoryGetNotFound(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	for _, id := range []string{"", "tech-1", uuid.NewString()} {
		if _, err := h.directory.Get(context.Background(), id); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("%q: expected not found, got %v", id, err)
		}
	}
}

func TestDirectoryAdjustClampsAndCaps(t *testing.T) {
	h := newHarness(t, config.DefaultDispatch())
	tech := h.addTechnician(t, "ada", "IT", 0, 1)

	if _, err := h.directory.AdjustAssignmentCount(context.Background(), tech.ID, -1); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got := h.technician(t, tech.ID).CurrentAssignments; got != 0 {
		t.Fatalf("expected clamp at zero, got %d", got)
	}
	if _, err := h.directory.AdjustAssignmentCount(context.Background(), tech.ID, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := h.directory.AdjustAssignmentCount(context.Background(), tech.ID, 1); !apperr.Is(err, apperr.KindCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	if _, err := h.directory.AdjustAssignmentCount(context.Background(), tech.ID, 0); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for zero delta, got %v", err)
	}
}
