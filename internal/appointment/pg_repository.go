package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/interval"
)

const columns = `id, patient_id, service_id, dentist_id, chair_id, start_time, end_time, status, number_of_teeth, service_fee_cents, notes, created_by, created_at, updated_at`

var scopeColumns = map[ScopeKind]string{
	ScopePatient: "patient_id",
	ScopeDentist: "dentist_id",
	ScopeChair:   "chair_id",
}

type PgRepository struct{}

func NewPgRepository() *PgRepository {
	return &PgRepository{}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ServiceID,
		&a.DentistID,
		&a.ChairID,
		&a.Start,
		&a.End,
		&status,
		&a.NumberOfTeeth,
		&a.ServiceFeeCents,
		&a.Notes,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func scanOne(op string, row pgx.Row) (*Appointment, error) {
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, apperr.OperationFailed(op, err)
	}
	return a, nil
}

func (r *PgRepository) Get(ctx context.Context, q db.Querier, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `SELECT `+columns+` FROM appointments WHERE id = $1`, id)
	return scanOne("get appointment", row)
}

func (r *PgRepository) GetForUpdate(ctx context.Context, q db.Querier, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `SELECT `+columns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanOne("lock appointment", row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, q db.Querier, patientID uuid.UUID) ([]Appointment, error) {
	return r.list(ctx, q, "list patient appointments", `
		SELECT `+columns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time`, patientID)
}

func (r *PgRepository) ListInRange(ctx context.Context, q db.Querier, from, to time.Time, filter RangeFilter) ([]Appointment, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + columns + ` FROM appointments WHERE start_time < $2 AND end_time > $1`)
	args := []any{from, to}
	for _, f := range []struct {
		column string
		id     *uuid.UUID
	}{
		{"patient_id", filter.PatientID},
		{"dentist_id", filter.DentistID},
		{"chair_id", filter.ChairID},
	} {
		if f.id == nil {
			continue
		}
		args = append(args, *f.id)
		fmt.Fprintf(&sb, ` AND %s = $%d`, f.column, len(args))
	}
	sb.WriteString(` ORDER BY start_time`)
	return r.list(ctx, q, "list appointments in range", sb.String(), args...)
}

func (r *PgRepository) ListForScope(ctx context.Context, q db.Querier, scope Scope, window interval.Interval) ([]Appointment, error) {
	col, ok := scopeColumns[scope.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
	return r.list(ctx, q, "list appointments for scope", `
		SELECT `+columns+`
		FROM appointments
		WHERE `+col+` = $1
		  AND start_time < $3
		  AND end_time > $2`, scope.ID, window.Start, window.End)
}

func (r *PgRepository) ListForScopes(ctx context.Context, q db.Querier, scopes []Scope, window interval.Interval) ([]Appointment, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	args := []any{window.Start, window.End}
	owners := make([]string, 0, len(scopes))
	for _, s := range scopes {
		col, ok := scopeColumns[s.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown scope kind %q", s.Kind)
		}
		args = append(args, s.ID)
		owners = append(owners, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return r.list(ctx, q, "list appointments for scopes", `
		SELECT `+columns+`
		FROM appointments
		WHERE (`+strings.Join(owners, " OR ")+`)
		  AND start_time < $2
		  AND end_time > $1`, args...)
}

func (r *PgRepository) list(ctx context.Context, q db.Querier, op, sql string, args ...any) ([]Appointment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.OperationFailed(op, err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, apperr.OperationFailed(op, err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.OperationFailed(op, err)
	}
	return result, nil
}

func (r *PgRepository) Insert(ctx context.Context, q db.Querier, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, service_id, dentist_id, chair_id, start_time, end_time, status, number_of_teeth, service_fee_cents, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+columns,
		a.ID, a.PatientID, a.ServiceID, a.DentistID, a.ChairID, a.Start, a.End,
		string(a.Status), a.NumberOfTeeth, a.ServiceFeeCents, a.Notes, a.CreatedBy)
	return scanOne("insert appointment", row)
}

func (r *PgRepository) Update(ctx context.Context, q db.Querier, a Appointment) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET dentist_id = $2,
		    chair_id = $3,
		    start_time = $4,
		    end_time = $5,
		    status = $6,
		    number_of_teeth = $7,
		    service_fee_cents = $8,
		    notes = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		a.ID, a.DentistID, a.ChairID, a.Start, a.End, string(a.Status),
		a.NumberOfTeeth, a.ServiceFeeCents, a.Notes)
	return scanOne("update appointment", row)
}

func (r *PgRepository) Delete(ctx context.Context, q db.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return apperr.OperationFailed("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) CountTreatmentRefs(ctx context.Context, q db.Querier, id uuid.UUID) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM treatments WHERE appointment_id = $1`, id).Scan(&n); err != nil {
		return 0, apperr.OperationFailed("count treatment references", err)
	}
	return n, nil
}
