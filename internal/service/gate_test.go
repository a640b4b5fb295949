package service

import (
	"testing"

	"github.com/fixflow/backend/internal/config"
	"github.com/fixflow/backend/internal/models"
)

func TestQualityGateMonotonic(t *testing.T) {
	gate := NewQualityGate(config.DefaultDispatch())

	for _, days := range []float64{0, 1, 10, 20} {
		a := models.Alert{Location: "x", Category: "it", DaysToFailure: floatPtr(days), Confidence: floatPtr(79)}
		if ok, _ := gate.Check(a); ok {
			t.Fatalf("confidence 79 must fail at days=%v", days)
		}
	}
	for _, conf := range []float64{80, 95, 100} {
		a := models.Alert{Location: "x", Category: "it", DaysToFailure: floatPtr(21), Confidence: floatPtr(conf)}
		if ok, _ := gate.Check(a); ok {
			t.Fatalf("days 21 must fail at confidence=%v", conf)
		}
	}
}

func TestQualityGateBoundaries(t *testing.T) {
	gate := NewQualityGate(config.DefaultDispatch())
	pass := models.Alert{DaysToFailure: floatPtr(20), Confidence: floatPtr(80), ModelR2: floatPtr(0.7)}
	if ok, reason := gate.Check(pass); !ok {
		t.Fatalf("boundary values must pass: %s", reason)
	}
	if ok, _ := gate.Check(models.Alert{DaysToFailure: floatPtr(3)}); !ok {
		t.Fatalf("absent optional metrics must not be checked")
	}
	ok, reason := gate.Check(models.Alert{DaysToFailure: floatPtr(3), ModelR2: floatPtr(0.5)})
	if ok || reason == "" {
		t.Fatalf("expected r2 rejection with reason")
	}
}
