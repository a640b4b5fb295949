package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixflow/backend/internal/apperr"
	"github.com/fixflow/backend/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const defaultTimeout = 5 * time.Second

type Store struct {
	Pool    *pgxpool.Pool
	Timeout time.Duration
}

func New(ctx context.Context, databaseURL string, timeout time.Duration) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{Pool: pool, Timeout: timeout}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// bound puts every store call under the configured timeout so a stuck
// connection surfaces as a store error instead of hanging the caller.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(op, "record not found")
	}
	return apperr.Wrap(apperr.KindStore, op, err)
}

const technicianColumns = `id::text, name, specialization, active, available, current_assignments, max_concurrent, updated_at`

func scanTechnician(row pgx.Row) (models.Technician, error) {
	var t models.Technician
	err := row.Scan(&t.ID, &t.Name, &t.Specialization, &t.Active, &t.Available, &t.CurrentAssignments, &t.MaxConcurrent, &t.UpdatedAt)
	return t, err
}

func (s *Store) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `SELECT `+technicianColumns+` FROM technicians ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, storeErr("technicians.list", err)
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, storeErr("technicians.list", err)
		}
		out = append(out, t)
	}
	return out, storeErr("technicians.list", rows.Err())
}

func (s *Store) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	t, err := scanTechnician(s.Pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id))
	if err != nil {
		return models.Technician{}, storeErr("technicians.get", err)
	}
	return t, nil
}

func (s *Store) CreateTechnician(ctx context.Context, t models.Technician) (models.Technician, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, `
		INSERT INTO technicians (id, name, specialization, active, available, current_assignments, max_concurrent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING `+technicianColumns,
		t.ID, t.Name, t.Specialization, t.Active, t.Available, t.CurrentAssignments, t.MaxConcurrent)
	created, err := scanTechnician(row)
	if err != nil {
		return models.Technician{}, storeErr("technicians.create", err)
	}
	return created, nil
}

// AdjustAssignmentCount applies delta in a single conditional statement.
// Increments only succeed while the result stays within max_concurrent;
// decrements clamp at zero.
func (s *Store) AdjustAssignmentCount(ctx context.Context, id string, delta int) (models.Technician, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var t models.Technician
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		t, err = adjustCount(ctx, tx, id, delta, false)
		return err
	})
	if err != nil {
		return models.Technician{}, storeErr("technicians.adjust", err)
	}
	return t, nil
}

func adjustCount(ctx context.Context, tx pgx.Tx, id string, delta int, requireAvailable bool) (models.Technician, error) {
	if delta < 0 {
		t, err := scanTechnician(tx.QueryRow(ctx, `
			UPDATE technicians SET current_assignments = GREATEST(current_assignments + $2, 0), updated_at = NOW()
			WHERE id = $1
			RETURNING `+technicianColumns, id, delta))
		if err != nil {
			return models.Technician{}, err
		}
		return t, nil
	}

	query := `
		UPDATE technicians SET current_assignments = current_assignments + $2, updated_at = NOW()
		WHERE id = $1 AND current_assignments + $2 <= max_concurrent`
	if requireAvailable {
		query += ` AND active AND available`
	}
	query += ` RETURNING ` + technicianColumns

	t, err := scanTechnician(tx.QueryRow(ctx, query, id, delta))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Technician{}, err
	}

	current, err := scanTechnician(tx.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id))
	if err != nil {
		return models.Technician{}, err
	}
	if requireAvailable && (!current.Active || !current.Available) {
		return models.Technician{}, apperr.New(apperr.KindUnavailable, "technicians.adjust", "technician is not available")
	}
	return models.Technician{}, apperr.New(apperr.KindCapacityExceeded, "technicians.adjust",
		fmt.Sprintf("technician at capacity (%d/%d)", current.CurrentAssignments, current.MaxConcurrent))
}

func (s *Store) SetAvailability(ctx context.Context, id string, active, available bool) (models.Technician, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	t, err := scanTechnician(s.Pool.QueryRow(ctx, `
		UPDATE technicians SET active = $2, available = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+technicianColumns, id, active, available))
	if err != nil {
		return models.Technician{}, storeErr("technicians.availability", err)
	}
	return t, nil
}

func (s *Store) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `SELECT id::text, name, role FROM users WHERE role = $1 ORDER BY id`, role)
	if err != nil {
		return nil, storeErr("users.list", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role); err != nil {
			return nil, storeErr("users.list", err)
		}
		out = append(out, u)
	}
	return out, storeErr("users.list", rows.Err())
}

const incidentColumns = `id::text, title, description, location, category, status, priority, source,
	reported_by::text, assigned_to::text, sla_deadline, sla_started_at, escalated, escalated_at,
	resolved_at, completed_by::text, completed_at, created_at, updated_at`

func scanIncident(row pgx.Row) (models.Incident, error) {
	var (
		i      models.Incident
		status string
		source string
	)
	err := row.Scan(&i.ID, &i.Title, &i.Description, &i.Location, &i.Category, &status, &i.Priority, &source,
		&i.ReportedBy, &i.AssignedTo, &i.SLADeadline, &i.SLAStartedAt, &i.Escalated, &i.EscalatedAt,
		&i.ResolvedAt, &i.CompletedBy, &i.CompletedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return models.Incident{}, err
	}
	parsed, err := models.ParseIncidentStatus(status)
	if err != nil {
		return models.Incident{}, err
	}
	i.Status = parsed
	i.Source = models.AlertSource(source)
	return i, nil
}

func (s *Store) CreateIncident(ctx context.Context, i models.Incident) (models.Incident, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.Pool.QueryRow(ctx, `
		INSERT INTO incidents (id, title, description, location, category, status, priority, source, reported_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING `+incidentColumns,
		i.ID, i.Title, i.Description, i.Location, i.Category, string(i.Status), i.Priority, string(i.Source), i.ReportedBy, i.CreatedAt)
	created, err := scanIncident(row)
	if err != nil {
		return models.Incident{}, storeErr("incidents.create", err)
	}
	return created, nil
}

func (s *Store) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	i, err := scanIncident(s.Pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err != nil {
		return models.Incident{}, storeErr("incidents.get", err)
	}
	return i, nil
}

func (s *Store) ListIncidents(ctx context.Context, f models.IncidentFilter) ([]models.Incident, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var args []any
	var wheres []string
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		wheres = append(wheres, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		wheres = append(wheres, fmt.Sprintf("lower(category) = lower($%d)", len(args)))
	}
	if f.TechnicianID != "" {
		args = append(args, f.TechnicianID)
		wheres = append(wheres, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if f.CreatedFrom != nil {
		args = append(args, *f.CreatedFrom)
		wheres = append(wheres, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.CreatedTo != nil {
		args = append(args, *f.CreatedTo)
		wheres = append(wheres, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if f.OnlyUnescalated {
		wheres = append(wheres, "escalated = FALSE")
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("incidents.list", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, storeErr("incidents.list", err)
		}
		out = append(out, i)
	}
	return out, storeErr("incidents.list", rows.Err())
}

func (s *Store) HasRecentAssignment(ctx context.Context, location, category string, since time.Time) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var exists bool
	err := s.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM incidents
			WHERE lower(location) = lower($1) AND lower(category) = lower($2)
				AND assigned_to IS NOT NULL AND sla_started_at >= $3
		)`, location, category, since).Scan(&exists)
	return exists, storeErr("incidents.cooldown", err)
}

func (s *Store) FindOpenIncident(ctx context.Context, location, category string, since time.Time) (*models.Incident, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	i, err := scanIncident(s.Pool.QueryRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE lower(location) = lower($1) AND lower(category) = lower($2)
			AND status IN ('new', 'in-progress') AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`, location, category, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("incidents.dedup", err)
	}
	return &i, nil
}

// AssignIncident takes one unit of the technician's capacity and writes the
// assignment and SLA fields in one transaction, so either both land or
// neither does.
func (s *Store) AssignIncident(ctx context.Context, req models.AssignRequest) (models.Incident, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var out models.Incident
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := adjustCount(ctx, tx, req.TechnicianID, 1, true); err != nil {
			return err
		}
		i, err := scanIncident(tx.QueryRow(ctx, `
			UPDATE incidents SET
				assigned_to = $2,
				priority = $3,
				sla_started_at = $4,
				sla_deadline = $5,
				status = CASE WHEN status IN ('resolved', 'cancelled') THEN status ELSE 'in-progress' END,
				updated_at = $4
			WHERE id = $1 AND assigned_to IS NULL
			RETURNING `+incidentColumns,
			req.IncidentID, req.TechnicianID, req.Priority, req.SLAStartedAt, req.SLADeadline))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindConflict, "incidents.assign", "incident missing or already assigned")
		}
		if err != nil {
			return err
		}
		out = i
		return nil
	})
	if err != nil {
		return models.Incident{}, storeErr("incidents.assign", err)
	}
	return out, nil
}

func (s *Store) ReassignIncident(ctx context.Context, incidentID, fromTechnician, toTechnician string, at time.Time) (models.Incident, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var out models.Incident
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		i, err := scanIncident(tx.QueryRow(ctx, `
			UPDATE incidents SET assigned_to = $3, updated_at = $4
			WHERE id = $1 AND assigned_to = $2
			RETURNING `+incidentColumns, incidentID, fromTechnician, toTechnician, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindConflict, "incidents.reassign", "incident no longer assigned to previous technician")
		}
		if err != nil {
			return err
		}
		if _, err := adjustCount(ctx, tx, toTechnician, 1, true); err != nil {
			return err
		}
		if _, err := adjustCount(ctx, tx, fromTechnician, -1, false); err != nil {
			return err
		}
		out = i
		return nil
	})
	if err != nil {
		return models.Incident{}, storeErr("incidents.reassign", err)
	}
	return out, nil
}

func (s *Store) MarkEscalated(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, `
		UPDATE incidents SET escalated = TRUE, escalated_at = $2, updated_at = $2
		WHERE id = $1 AND escalated = FALSE AND status IN ('new', 'in-progress')`, id, at)
	if err != nil {
		return false, storeErr("incidents.escalate", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, patch models.IncidentPatch) (models.Incident, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	i, err := scanIncident(s.Pool.QueryRow(ctx, `
		UPDATE incidents SET
			status = $3,
			resolved_at = COALESCE($4, resolved_at),
			completed_by = COALESCE($5, completed_by),
			completed_at = COALESCE($6, completed_at),
			updated_at = $7
		WHERE id = $1 AND status = $2
		RETURNING `+incidentColumns,
		id, string(from), string(to), patch.ResolvedAt, patch.CompletedBy, patch.CompletedAt, patch.At))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetIncident(ctx, id); getErr != nil {
			return models.Incident{}, getErr
		}
		return models.Incident{}, apperr.New(apperr.KindConflict, "incidents.transition", "incident status changed concurrently")
	}
	if err != nil {
		return models.Incident{}, storeErr("incidents.transition", err)
	}
	return i, nil
}

const scheduleColumns = `id::text, technician_id::text, incident_id::text, scheduled_time, duration_minutes, status, holds_capacity, created_at, updated_at`

func scanSchedule(row pgx.Row) (models.Schedule, error) {
	var (
		sc     models.Schedule
		status string
	)
	err := row.Scan(&sc.ID, &sc.TechnicianID, &sc.IncidentID, &sc.ScheduledTime, &sc.DurationMinutes, &status, &sc.HoldsCapacity, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return models.Schedule{}, err
	}
	parsed, err := models.ParseScheduleStatus(status)
	if err != nil {
		return models.Schedule{}, err
	}
	sc.Status = parsed
	return sc, nil
}

func activeSchedules(ctx context.Context, q interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}, technicianID string) ([]models.Schedule, error) {
	rows, err := q.Query(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE technician_id = $1 AND status IN ('scheduled', 'in-progress')`, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) HasOverlap(ctx context.Context, technicianID string, start time.Time, durationMinutes int) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	existing, err := activeSchedules(ctx, s.Pool, technicianID)
	if err != nil {
		return false, storeErr("schedules.overlap", err)
	}
	return anyOverlap(existing, start, durationMinutes), nil
}

func anyOverlap(existing []models.Schedule, start time.Time, durationMinutes int) bool {
	for _, sc := range existing {
		if sc.Overlaps(start, durationMinutes) {
			return true
		}
	}
	return false
}

// CreateSchedule locks the technician row for the whole check-then-insert so
// two concurrent requests for one technician cannot both pass the overlap
// and capacity checks.
func (s *Store) CreateSchedule(ctx context.Context, sc models.Schedule) (models.Schedule, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var out models.Schedule
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tech, err := scanTechnician(tx.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1 FOR UPDATE`, sc.TechnicianID))
		if err != nil {
			return err
		}
		existing, err := activeSchedules(ctx, tx, sc.TechnicianID)
		if err != nil {
			return err
		}
		if anyOverlap(existing, sc.ScheduledTime, sc.DurationMinutes) {
			return apperr.New(apperr.KindOverlap, "schedules.create", "technician already booked for this slot")
		}
		if !tech.Active || !tech.Available {
			return apperr.New(apperr.KindUnavailable, "schedules.create", "technician is not available")
		}
		if sc.HoldsCapacity {
			if _, err := adjustCount(ctx, tx, sc.TechnicianID, 1, true); err != nil {
				return err
			}
		}
		created, err := scanSchedule(tx.QueryRow(ctx, `
			INSERT INTO schedules (id, technician_id, incident_id, scheduled_time, duration_minutes, status, holds_capacity, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			RETURNING `+scheduleColumns,
			sc.ID, sc.TechnicianID, sc.IncidentID, sc.ScheduledTime, sc.DurationMinutes, string(sc.Status), sc.HoldsCapacity, sc.CreatedAt))
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return models.Schedule{}, storeErr("schedules.create", err)
	}
	return out, nil
}

func (s *Store) GetSchedule(ctx context.Context, id string) (models.Schedule, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	sc, err := scanSchedule(s.Pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		return models.Schedule{}, storeErr("schedules.get", err)
	}
	return sc, nil
}

func (s *Store) ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var args []any
	var wheres []string
	if f.TechnicianID != "" {
		args = append(args, f.TechnicianID)
		wheres = append(wheres, fmt.Sprintf("technician_id = $%d", len(args)))
	}
	if f.IncidentID != "" {
		args = append(args, f.IncidentID)
		wheres = append(wheres, fmt.Sprintf("incident_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		wheres = append(wheres, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		wheres = append(wheres, fmt.Sprintf("scheduled_time > $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY scheduled_time ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("schedules.list", err)
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, storeErr("schedules.list", err)
		}
		out = append(out, sc)
	}
	return out, storeErr("schedules.list", rows.Err())
}

func (s *Store) TransitionSchedule(ctx context.Context, id string, from, to models.ScheduleStatus, at time.Time) (models.Schedule, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	sc, err := scanSchedule(s.Pool.QueryRow(ctx, `
		UPDATE schedules SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+scheduleColumns, id, string(from), string(to), at))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetSchedule(ctx, id); getErr != nil {
			return models.Schedule{}, getErr
		}
		return models.Schedule{}, apperr.New(apperr.KindConflict, "schedules.transition", "schedule status changed concurrently")
	}
	if err != nil {
		return models.Schedule{}, storeErr("schedules.transition", err)
	}
	return sc, nil
}
