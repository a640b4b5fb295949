package service

import (
	"context"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/models"
)

const defaultMaxConcurrent = 2

type Directory struct {
	Store         Store
	MaxConcurrent int
}

func (d *Directory) List(ctx context.Context) ([]models.Technician, error) {
	techs, err := d.Store.ListTechnicians(ctx)
	if err != nil {
		return nil, err
	}
	for i := range techs {
		techs[i] = d.normalize(techs[i])
	}
	return techs, nil
}

func (d *Directory) Get(ctx context.Context, id string) (models.Technician, error) {
	if err := validID("technicians.get", "technician", id); err != nil {
		return models.Technician{}, err
	}
	t, err := d.Store.GetTechnician(ctx, id)
	if err != nil {
		return models.Technician{}, err
	}
	return d.normalize(t), nil
}

// AdjustAssignmentCount moves a technician's load by delta. Increments
// fail with CAPACITY_EXCEEDED at the cap; decrements clamp at zero.
func (d *Directory) AdjustAssignmentCount(ctx context.Context, id string, delta int) (models.Technician, error) {
	if err := validID("technicians.adjust", "technician", id); err != nil {
		return models.Technician{}, err
	}
	if delta == 0 {
		return models.Technician{}, apperr.Validation("technicians.adjust", "delta must be non-zero")
	}
	t, err := d.Store.AdjustAssignmentCount(ctx, id, delta)
	if err != nil {
		return models.Technician{}, err
	}
	return d.normalize(t), nil
}

func (d *Directory) SetAvailability(ctx context.Context, id string, active, available bool) (models.Technician, error) {
	if err := validID("technicians.availability", "technician", id); err != nil {
		return models.Technician{}, err
	}
	t, err := d.Store.SetAvailability(ctx, id, active, available)
	if err != nil {
		return models.Technician{}, err
	}
	return d.normalize(t), nil
}

func (d *Directory) normalize(t models.Technician) models.Technician {
	if t.MaxConcurrent <= 0 {
		t.MaxConcurrent = d.MaxConcurrent
		if t.MaxConcurrent <= 0 {
			t.MaxConcurrent = defaultMaxConcurrent
		}
	}
	if t.CurrentAssignments < 0 {
		t.CurrentAssignments = 0
	}
	if t.Specialization == "" {
		t.Specialization = "General"
	}
	return t
}
