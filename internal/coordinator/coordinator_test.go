package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
	redisclient "github.com/hackgods/dental-clinic-engine/internal/redis"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

var (
	appointmentCols = []string{"id", "patient_id", "service_id", "dentist_id", "chair_id", "start_time", "end_time", "status", "number_of_teeth", "service_fee_cents", "notes", "created_by", "created_at", "updated_at"}
	treatmentCols   = []string{"id", "patient_id", "appointment_id", "dentist_id", "treatment_date", "notes", "treatment_type", "created_by", "created_at", "updated_at"}
	toothCols       = []string{"treatment_id", "tooth_number", "treatment_name", "status"}
	itemCols        = []string{"id", "name", "category", "quantity", "min_quantity", "supplier_id", "batch_number", "location", "expiration", "created_at", "updated_at"}
	historyCols     = []string{"id", "item_id", "previous_quantity", "new_quantity", "change_type", "note", "actor", "treatment_id", "created_at"}
)

type harness struct {
	mock   pgxmock.PgxPoolIface
	coord  *Coordinator
	events *notify.Subscription
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	hub := notify.NewBroadcaster(nil)
	events := hub.Subscribe(32, nil)
	ledger := inventory.NewLedger(mock, inventory.NewPgRepository(), hub)
	machine := treatment.NewMachine(treatment.NewPgRepository(), nil)
	opts = append([]Option{WithTxTimeout(time.Second)}, opts...)
	coord := New(mock, appointment.NewPgRepository(), machine, ledger, hub, opts...)
	return &harness{mock: mock, coord: coord, events: events}
}

func (h *harness) drain() []notify.EventType {
	var out []notify.EventType
	for {
		select {
		case ev := <-h.events.Events():
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2025-03-03 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func appointmentRows(apps ...appointment.Appointment) *pgxmock.Rows {
	rows := pgxmock.NewRows(appointmentCols)
	for _, a := range apps {
		rows.AddRow(a.ID, a.PatientID, a.ServiceID, a.DentistID, a.ChairID, a.Start, a.End,
			string(a.Status), a.NumberOfTeeth, a.ServiceFeeCents, a.Notes, a.CreatedBy, a.Start, a.Start)
	}
	return rows
}

func appt(patient uuid.UUID, from, to string, status appointment.Status) appointment.Appointment {
	return appointment.Appointment{
		ID:            uuid.New(),
		PatientID:     patient,
		ServiceID:     uuid.New(),
		Start:         at(from),
		End:           at(to),
		Status:        status,
		NumberOfTeeth: 1,
	}
}

func draft(patient uuid.UUID, from, to string) appointment.Draft {
	return appointment.Draft{
		PatientID:     patient,
		ServiceID:     uuid.New(),
		Start:         at(from),
		End:           at(to),
		NumberOfTeeth: 1,
		CreatedBy:     "front-desk",
	}
}

func (h *harness) expectGuard(scope appointment.Scope, from, to string, existing ...appointment.Appointment) {
	h.mock.ExpectExec("pg_advisory_xact_lock").WithArgs(db.LockKey(scope.Key())).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	h.mock.ExpectQuery(`WHERE `+string(scope.Kind)+`_id = \$1`).
		WithArgs(scope.ID, at(from), at(to)).
		WillReturnRows(appointmentRows(existing...))
}

func TestBookAppointmentRejectsOverlapAcceptsAdjacent(t *testing.T) {
	h := newHarness(t)
	patient := uuid.New()
	scope := appointment.Scope{Kind: appointment.ScopePatient, ID: patient}
	existing := appt(patient, "10:00", "10:30", appointment.StatusConfirmed)

	h.mock.ExpectBegin()
	h.expectGuard(scope, "10:15", "10:45", existing)
	h.mock.ExpectRollback()

	_, err := h.coord.BookAppointment(context.Background(), draft(patient, "10:15", "10:45"))
	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, appointment.ErrSlotConflict)
	assert.Equal(t, existing.ID, conflict.ConflictingID)
	assert.Equal(t, scope, conflict.Scope)
	assert.Empty(t, h.drain())

	booked := appt(patient, "10:30", "11:00", appointment.StatusPending)
	h.mock.ExpectBegin()
	h.expectGuard(scope, "10:30", "11:00", existing)
	h.mock.ExpectQuery("INSERT INTO appointments").WillReturnRows(appointmentRows(booked))
	h.mock.ExpectCommit()

	created, err := h.coord.BookAppointment(context.Background(), draft(patient, "10:30", "11:00"))
	require.NoError(t, err)
	assert.Equal(t, booked.ID, created.ID)
	assert.Equal(t, []notify.EventType{notify.AppointmentCreated}, h.drain())
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBookAppointmentChecksEveryScope(t *testing.T) {
	h := newHarness(t, WithScopes(appointment.ScopePatient, appointment.ScopeDentist))
	patient, dentist := uuid.New(), uuid.New()
	d := draft(patient, "14:00", "14:30")
	d.DentistID = &dentist

	busy := appt(uuid.New(), "14:15", "14:45", appointment.StatusInProgress)
	busy.DentistID = &dentist

	dentistScope := appointment.Scope{Kind: appointment.ScopeDentist, ID: dentist}
	patientScope := appointment.Scope{Kind: appointment.ScopePatient, ID: patient}
	first, second := dentistScope, patientScope
	if patientScope.Key() < dentistScope.Key() {
		first, second = patientScope, dentistScope
	}

	h.mock.ExpectBegin()
	h.mock.ExpectExec("pg_advisory_xact_lock").WithArgs(db.LockKey(first.Key())).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	h.mock.ExpectExec("pg_advisory_xact_lock").WithArgs(db.LockKey(second.Key())).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	for _, s := range []appointment.Scope{first, second} {
		var rows []appointment.Appointment
		if s == dentistScope {
			rows = append(rows, busy)
		}
		h.mock.ExpectQuery(`WHERE `+string(s.Kind)+`_id = \$1`).WithArgs(s.ID, at("14:00"), at("14:30")).WillReturnRows(appointmentRows(rows...))
		if s == dentistScope {
			break
		}
	}
	h.mock.ExpectRollback()

	_, err := h.coord.BookAppointment(context.Background(), d)
	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, dentistScope, conflict.Scope)
	assert.Equal(t, busy.ID, conflict.ConflictingID)
	assert.Equal(t, []appointment.Scope{first, second}, conflict.Scopes)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBookAppointmentValidationOpensNoTransaction(t *testing.T) {
	h := newHarness(t)
	d := draft(uuid.New(), "10:00", "09:00")

	_, err := h.coord.BookAppointment(context.Background(), d)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBookAppointmentUsesResourceLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	patient := uuid.New()
	scope := appointment.Scope{Kind: appointment.ScopePatient, ID: patient}
	require.NoError(t, mr.Set("lock:"+scope.Key(), "other-instance"))

	h := newHarness(t, WithLocker(redisclient.NewResourceLocker(client, time.Second, 50*time.Millisecond)))
	_, err := h.coord.BookAppointment(context.Background(), draft(patient, "09:00", "09:30"))
	assert.ErrorIs(t, err, apperr.ErrOperationFailed)
	assert.ErrorIs(t, err, redisclient.ErrLockNotAcquired)

	mr.Del("lock:" + scope.Key())
	booked := appt(patient, "09:00", "09:30", appointment.StatusPending)
	h.mock.ExpectBegin()
	h.expectGuard(scope, "09:00", "09:30")
	h.mock.ExpectQuery("INSERT INTO appointments").WillReturnRows(appointmentRows(booked))
	h.mock.ExpectCommit()

	_, err = h.coord.BookAppointment(context.Background(), draft(patient, "09:00", "09:30"))
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:"+scope.Key()))
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestConfirmPaymentUsesResourceLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	patient := uuid.New()
	scope := appointment.Scope{Kind: appointment.ScopePatient, ID: patient}
	pending := appt(patient, "15:00", "15:30", appointment.StatusPending)
	confirmed := pending
	confirmed.Status = appointment.StatusConfirmed
	require.NoError(t, mr.Set("lock:"+scope.Key(), "other-instance"))

	h := newHarness(t, WithLocker(redisclient.NewResourceLocker(client, time.Second, 50*time.Millisecond)))
	h.mock.ExpectQuery(`FROM appointments WHERE id = \$1$`).WithArgs(pending.ID).WillReturnRows(appointmentRows(pending))
	_, err := h.coord.ConfirmPayment(context.Background(), pending.ID)
	assert.ErrorIs(t, err, redisclient.ErrLockNotAcquired)
	require.NoError(t, h.mock.ExpectationsWereMet())

	mr.Del("lock:" + scope.Key())
	h.mock.ExpectQuery(`FROM appointments WHERE id = \$1$`).WithArgs(pending.ID).WillReturnRows(appointmentRows(pending))
	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(pending.ID).WillReturnRows(appointmentRows(pending))
	h.expectGuard(scope, "15:00", "15:30", pending)
	h.mock.ExpectQuery("UPDATE appointments").WillReturnRows(appointmentRows(confirmed))
	h.mock.ExpectCommit()

	got, err := h.coord.ConfirmPayment(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
	assert.False(t, mr.Exists("lock:"+scope.Key()))
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestUpdateAppointmentLocksTargetScopes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	patient := uuid.New()
	dentist := uuid.New()
	current := appt(patient, "10:00", "10:30", appointment.StatusConfirmed)
	dentistScope := appointment.Scope{Kind: appointment.ScopeDentist, ID: dentist}
	require.NoError(t, mr.Set("lock:"+dentistScope.Key(), "other-instance"))

	h := newHarness(t,
		WithScopes(appointment.ScopePatient, appointment.ScopeDentist),
		WithLocker(redisclient.NewResourceLocker(client, time.Second, 50*time.Millisecond)),
	)
	h.mock.ExpectQuery(`FROM appointments WHERE id = \$1$`).WithArgs(current.ID).WillReturnRows(appointmentRows(current))

	_, err := h.coord.UpdateAppointment(context.Background(), current.ID, appointment.Update{DentistID: &dentist})
	assert.ErrorIs(t, err, redisclient.ErrLockNotAcquired)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestBookAppointmentFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	patient := uuid.New()
	scope := appointment.Scope{Kind: appointment.ScopePatient, ID: patient}
	booked := appt(patient, "09:00", "09:30", appointment.StatusPending)

	h := newHarness(t, WithLocker(redisclient.NewResourceLocker(client, time.Second, 50*time.Millisecond)))
	h.mock.ExpectBegin()
	h.expectGuard(scope, "09:00", "09:30")
	h.mock.ExpectQuery("INSERT INTO appointments").WillReturnRows(appointmentRows(booked))
	h.mock.ExpectCommit()

	got, err := h.coord.BookAppointment(context.Background(), draft(patient, "09:00", "09:30"))
	require.NoError(t, err)
	assert.Equal(t, booked.ID, got.ID)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestUpdateAppointmentExcludesItself(t *testing.T) {
	h := newHarness(t)
	patient := uuid.New()
	scope := appointment.Scope{Kind: appointment.ScopePatient, ID: patient}
	current := appt(patient, "10:00", "10:30", appointment.StatusConfirmed)
	newEnd := at("11:00")
	moved := current
	moved.End = newEnd

	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(current.ID).WillReturnRows(appointmentRows(current))
	h.expectGuard(scope, "10:00", "11:00", current)
	h.mock.ExpectQuery("UPDATE appointments").WillReturnRows(appointmentRows(moved))
	h.mock.ExpectCommit()

	got, err := h.coord.UpdateAppointment(context.Background(), current.ID, appointment.Update{End: &newEnd})
	require.NoError(t, err)
	assert.Equal(t, newEnd, got.End)
	assert.Equal(t, []notify.EventType{notify.AppointmentUpdated}, h.drain())
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestUpdateAppointmentCancelSkipsGuard(t *testing.T) {
	h := newHarness(t)
	current := appt(uuid.New(), "10:00", "10:30", appointment.StatusConfirmed)
	cancelled := appointment.StatusCancelled
	next := current
	next.Status = cancelled

	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(current.ID).WillReturnRows(appointmentRows(current))
	h.mock.ExpectQuery("UPDATE appointments").WillReturnRows(appointmentRows(next))
	h.mock.ExpectCommit()

	got, err := h.coord.UpdateAppointment(context.Background(), current.ID, appointment.Update{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestConfirmPayment(t *testing.T) {
	h := newHarness(t)
	patient := uuid.New()
	scope := appointment.Scope{Kind: appointment.ScopePatient, ID: patient}
	pending := appt(patient, "15:00", "15:30", appointment.StatusPending)
	confirmed := pending
	confirmed.Status = appointment.StatusConfirmed

	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(pending.ID).WillReturnRows(appointmentRows(pending))
	h.expectGuard(scope, "15:00", "15:30", pending)
	h.mock.ExpectQuery("UPDATE appointments").
		WithArgs(pending.ID, pending.DentistID, pending.ChairID, pending.Start, pending.End, "confirmed", 1, int64(0), "").
		WillReturnRows(appointmentRows(confirmed))
	h.mock.ExpectCommit()

	got, err := h.coord.ConfirmPayment(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
	assert.Equal(t, []notify.EventType{notify.AppointmentUpdated}, h.drain())

	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(pending.ID).WillReturnRows(appointmentRows(confirmed))
	h.mock.ExpectCommit()
	_, err = h.coord.ConfirmPayment(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Empty(t, h.drain())

	cancelled := pending
	cancelled.Status = appointment.StatusCancelled
	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(pending.ID).WillReturnRows(appointmentRows(cancelled))
	h.mock.ExpectRollback()
	_, err = h.coord.ConfirmPayment(context.Background(), pending.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestDeleteAppointmentRefusedWhileReferenced(t *testing.T) {
	h := newHarness(t)
	a := appt(uuid.New(), "10:00", "10:30", appointment.StatusCompleted)

	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(a.ID).WillReturnRows(appointmentRows(a))
	h.mock.ExpectQuery("SELECT count").WithArgs(a.ID).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	h.mock.ExpectRollback()

	err := h.coord.DeleteAppointment(context.Background(), a.ID)
	assert.ErrorIs(t, err, appointment.ErrReferencedByTreatment)

	h.mock.ExpectBegin()
	h.mock.ExpectQuery("FOR UPDATE").WithArgs(a.ID).WillReturnRows(appointmentRows(a))
	h.mock.ExpectQuery("SELECT count").WithArgs(a.ID).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	h.mock.ExpectExec("DELETE FROM appointments").WithArgs(a.ID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	h.mock.ExpectCommit()

	require.NoError(t, h.coord.DeleteAppointment(context.Background(), a.ID))
	assert.Equal(t, []notify.EventType{notify.AppointmentDeleted}, h.drain())
	require.NoError(t, h.mock.ExpectationsWereMet())
}
