package coordinator

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
)

// BookAppointment checks the proposal against every configured scope and
// inserts it in the same transaction. A rejected proposal returns
// *appointment.ConflictError and writes nothing.
func (c *Coordinator) BookAppointment(ctx context.Context, draft appointment.Draft) (*appointment.Appointment, error) {
	if err := draft.Validate(); err != nil {
		c.metrics.ObserveBooking("book", "invalid")
		return nil, err
	}
	proposed := draft.Appointment()
	scopes := c.scopesOf(proposed)

	var created *appointment.Appointment
	err := c.withResourceLocks(ctx, scopes, func(ctx context.Context) error {
		return c.inTx(ctx, "book_appointment", func(ctx context.Context, tx pgx.Tx) error {
			if err := c.guard(ctx, tx, proposed, scopes, nil); err != nil {
				return err
			}
			a, err := c.appointments.Insert(ctx, tx, proposed)
			if err != nil {
				return err
			}
			created = a
			return nil
		})
	})
	c.observeBooking("book", err)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("patient_id", created.PatientID.String()).
		Time("start", created.Start).
		Dur("duration", created.Interval().Duration()).
		Str("status", string(created.Status)).
		Msg("appointment booked")
	notify.Emit(ctx, c.notifier, c.logger, notify.AppointmentCreated, created.ID, newAppointmentPayload(*created))
	return created, nil
}

// UpdateAppointment applies a staff edit. Moving or reactivating an
// appointment re-runs the guard, ignoring the appointment itself.
func (c *Coordinator) UpdateAppointment(ctx context.Context, id uuid.UUID, u appointment.Update) (*appointment.Appointment, error) {
	var updated *appointment.Appointment
	lockScopes := c.lockScopesFor(ctx, id, func(current appointment.Appointment) (appointment.Appointment, bool) {
		next, err := u.Apply(current)
		return next, err == nil && u.Reschedules() && !next.Status.Terminal()
	})
	err := c.withResourceLocks(ctx, lockScopes, func(ctx context.Context) error {
		return c.inTx(ctx, "update_appointment", func(ctx context.Context, tx pgx.Tx) error {
			current, err := c.appointments.GetForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			next, err := u.Apply(*current)
			if err != nil {
				return err
			}
			if u.Reschedules() && !next.Status.Terminal() {
				if err := c.guard(ctx, tx, next, c.scopesOf(next), &id); err != nil {
					return err
				}
			}
			updated, err = c.appointments.Update(ctx, tx, next)
			return err
		})
	})
	c.observeBooking("update", err)
	if err != nil {
		return nil, err
	}

	notify.Emit(ctx, c.notifier, c.logger, notify.AppointmentUpdated, updated.ID, newAppointmentPayload(*updated))
	return updated, nil
}

// ConfirmPayment moves a pending appointment to confirmed. Confirmed
// appointments block their slot, so the guard runs again. Confirming twice is
// a no-op.
func (c *Coordinator) ConfirmPayment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var confirmed *appointment.Appointment
	changed := false
	lockScopes := c.lockScopesFor(ctx, id, func(current appointment.Appointment) (appointment.Appointment, bool) {
		return current, current.Status == appointment.StatusPending
	})
	err := c.withResourceLocks(ctx, lockScopes, func(ctx context.Context) error {
		return c.inTx(ctx, "confirm_payment", func(ctx context.Context, tx pgx.Tx) error {
			current, err := c.appointments.GetForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			switch current.Status {
			case appointment.StatusConfirmed:
				confirmed = current
				return nil
			case appointment.StatusPending:
			default:
				return apperr.Invalid("status", "cannot confirm a %s appointment", current.Status)
			}

			next := *current
			next.Status = appointment.StatusConfirmed
			if err := c.guard(ctx, tx, next, c.scopesOf(next), &id); err != nil {
				return err
			}
			confirmed, err = c.appointments.Update(ctx, tx, next)
			changed = err == nil
			return err
		})
	})
	c.observeBooking("confirm", err)
	if err != nil {
		return nil, err
	}

	if changed {
		c.logger.Info().Str("appointment_id", id.String()).Msg("payment confirmed")
		notify.Emit(ctx, c.notifier, c.logger, notify.AppointmentUpdated, confirmed.ID, newAppointmentPayload(*confirmed))
	}
	return confirmed, nil
}

// DeleteAppointment refuses while any treatment references the appointment.
func (c *Coordinator) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	var deleted *appointment.Appointment
	err := c.inTx(ctx, "delete_appointment", func(ctx context.Context, tx pgx.Tx) error {
		current, err := c.appointments.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		refs, err := c.appointments.CountTreatmentRefs(ctx, tx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return appointment.ErrReferencedByTreatment
		}
		if err := c.appointments.Delete(ctx, tx, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}

	notify.Emit(ctx, c.notifier, c.logger, notify.AppointmentDeleted, id, newAppointmentPayload(*deleted))
	return nil
}

// guard serializes writers of each scope with an advisory lock, then checks
// the proposal against what the scope already holds.
func (c *Coordinator) guard(ctx context.Context, tx db.Querier, proposed appointment.Appointment, scopes []appointment.Scope, excludeID *uuid.UUID) error {
	for _, s := range scopes {
		if err := db.AdvisoryLock(ctx, tx, s.Key()); err != nil {
			return err
		}
	}
	window := proposed.Interval()
	for _, s := range scopes {
		existing, err := c.appointments.ListForScope(ctx, tx, s, window)
		if err != nil {
			return err
		}
		if d := appointment.CheckConflict(window, s, existing, excludeID); !d.Accepted {
			return &appointment.ConflictError{Scope: s, ConflictingID: d.ConflictingID, Proposed: window, Scopes: scopes}
		}
	}
	return nil
}

// scopesOf returns the policy scopes of a sorted by lock key.
func (c *Coordinator) scopesOf(a appointment.Appointment) []appointment.Scope {
	scopes := appointment.Scopes(a, c.scopes)
	slices.SortFunc(scopes, func(x, y appointment.Scope) int {
		return strings.Compare(x.Key(), y.Key())
	})
	return scopes
}

// lockScopesFor reads the appointment outside any transaction to pick the
// Redis keys for a write that may run the guard. project returns the
// appointment as the write would leave it and whether the guard will run.
// Read failures yield no keys; the transaction reports them.
func (c *Coordinator) lockScopesFor(ctx context.Context, id uuid.UUID, project func(appointment.Appointment) (appointment.Appointment, bool)) []appointment.Scope {
	if c.locker == nil {
		return nil
	}
	current, err := c.appointments.Get(ctx, c.pool, id)
	if err != nil {
		return nil
	}
	next, guarded := project(*current)
	if !guarded {
		return nil
	}
	return c.scopesOf(next)
}

func (c *Coordinator) withResourceLocks(ctx context.Context, scopes []appointment.Scope, fn func(ctx context.Context) error) error {
	if c.locker == nil || len(scopes) == 0 {
		return fn(ctx)
	}
	keys := make([]string, len(scopes))
	for i, s := range scopes {
		keys[i] = s.Key()
	}
	return c.locker.WithResourceLocks(ctx, keys, fn)
}

func (c *Coordinator) observeBooking(op string, err error) {
	var result string
	switch {
	case err == nil:
		result = "accepted"
	case errors.Is(err, appointment.ErrSlotConflict):
		result = "conflict"
		c.logger.Warn().Err(err).Str("operation", op).Msg("booking rejected")
	case errors.Is(err, apperr.ErrValidation):
		result = "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
		c.logger.Error().Err(err).Str("operation", op).Msg("booking failed")
	}
	c.metrics.ObserveBooking(op, result)
}
