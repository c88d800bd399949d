package treatment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/db"
)

const columns = `id, patient_id, appointment_id, dentist_id, treatment_date, notes, treatment_type, created_by, created_at, updated_at`

type PgRepository struct{}

func NewPgRepository() *PgRepository {
	return &PgRepository{}
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	var typ string
	err := row.Scan(
		&t.ID,
		&t.PatientID,
		&t.AppointmentID,
		&t.DentistID,
		&t.Date,
		&t.Notes,
		&typ,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, err
	}
	t.Type = Type(typ)
	return &t, nil
}

func (r *PgRepository) Insert(ctx context.Context, q db.Querier, t Treatment) (*Treatment, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO treatments (id, patient_id, appointment_id, dentist_id, treatment_date, notes, treatment_type, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+columns,
		t.ID, t.PatientID, t.AppointmentID, t.DentistID, t.Date, t.Notes, string(t.Type), t.CreatedBy)

	created, err := scanTreatment(row)
	if err != nil {
		return nil, apperr.OperationFailed("insert treatment", err)
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error) {
	return r.getWithTeeth(ctx, q, "get treatment", `SELECT `+columns+` FROM treatments WHERE id = $1`, id)
}

func (r *PgRepository) GetForUpdate(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error) {
	return r.getWithTeeth(ctx, q, "lock treatment", `SELECT `+columns+` FROM treatments WHERE id = $1 FOR UPDATE`, id)
}

func (r *PgRepository) getWithTeeth(ctx context.Context, q db.Querier, op, sql string, id uuid.UUID) (*Treatment, error) {
	t, err := scanTreatment(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, ErrTreatmentNotFound) {
			return nil, err
		}
		return nil, apperr.OperationFailed(op, err)
	}
	teeth, err := r.loadTeeth(ctx, q, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	t.Teeth = teeth[id]
	return t, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, q db.Querier, patientID uuid.UUID) ([]Treatment, error) {
	return r.list(ctx, q, "list patient treatments", `
		SELECT `+columns+`
		FROM treatments
		WHERE patient_id = $1
		ORDER BY treatment_date DESC, created_at DESC`, patientID)
}

func (r *PgRepository) ListByAppointment(ctx context.Context, q db.Querier, appointmentID uuid.UUID) ([]Treatment, error) {
	return r.list(ctx, q, "list appointment treatments", `
		SELECT `+columns+`
		FROM treatments
		WHERE appointment_id = $1
		ORDER BY created_at`, appointmentID)
}

func (r *PgRepository) list(ctx context.Context, q db.Querier, op, sql string, args ...any) ([]Treatment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.OperationFailed(op, err)
	}

	var result []Treatment
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			rows.Close()
			return nil, apperr.OperationFailed(op, err)
		}
		result = append(result, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.OperationFailed(op, err)
	}
	if len(result) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(result))
	for i := range result {
		ids[i] = result[i].ID
	}
	teeth, err := r.loadTeeth(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Teeth = teeth[result[i].ID]
	}
	return result, nil
}

func (r *PgRepository) loadTeeth(ctx context.Context, q db.Querier, ids []uuid.UUID) (map[uuid.UUID][]ToothTreatment, error) {
	rows, err := q.Query(ctx, `
		SELECT treatment_id, tooth_number, treatment_name, status
		FROM tooth_treatments
		WHERE treatment_id = ANY($1)
		ORDER BY treatment_id, position`, ids)
	if err != nil {
		return nil, apperr.OperationFailed("load tooth treatments", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]ToothTreatment, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var tt ToothTreatment
		var status string
		if err := rows.Scan(&id, &tt.ToothNumber, &tt.TreatmentName, &status); err != nil {
			return nil, apperr.OperationFailed("load tooth treatments", err)
		}
		tt.Status = ToothStatus(status)
		out[id] = append(out[id], tt)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.OperationFailed("load tooth treatments", err)
	}
	return out, nil
}

func (r *PgRepository) UpdateHeader(ctx context.Context, q db.Querier, t Treatment) (*Treatment, error) {
	row := q.QueryRow(ctx, `
		UPDATE treatments
		SET dentist_id = $2,
		    treatment_date = $3,
		    notes = $4,
		    treatment_type = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		t.ID, t.DentistID, t.Date, t.Notes, string(t.Type))

	updated, err := scanTreatment(row)
	if err != nil {
		if errors.Is(err, ErrTreatmentNotFound) {
			return nil, err
		}
		return nil, apperr.OperationFailed("update treatment", err)
	}
	return updated, nil
}

func (r *PgRepository) Delete(ctx context.Context, q db.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM treatments WHERE id = $1`, id)
	if err != nil {
		return apperr.OperationFailed("delete treatment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTreatmentNotFound
	}
	return nil
}

// InsertTeeth writes all rows in one statement; position keeps input order.
func (r *PgRepository) InsertTeeth(ctx context.Context, q db.Querier, treatmentID uuid.UUID, teeth []ToothTreatment) error {
	if len(teeth) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO tooth_treatments (treatment_id, position, tooth_number, treatment_name, status) VALUES `)
	args := make([]any, 0, 1+len(teeth)*4)
	args = append(args, treatmentID)
	for i, tt := range teeth {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($1, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, i, tt.ToothNumber, tt.TreatmentName, string(tt.Status))
	}

	if _, err := q.Exec(ctx, sb.String(), args...); err != nil {
		return apperr.OperationFailed("insert tooth treatments", err)
	}
	return nil
}

func (r *PgRepository) DeleteTeeth(ctx context.Context, q db.Querier, treatmentID uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM tooth_treatments WHERE treatment_id = $1`, treatmentID); err != nil {
		return apperr.OperationFailed("delete tooth treatments", err)
	}
	return nil
}
