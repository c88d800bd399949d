package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

// TreatmentResult is the committed outcome of a treatment write.
type TreatmentResult struct {
	Treatment treatment.Treatment
	// Completed is true when every tooth is done.
	Completed bool
	// Consumed lists the stock mutations made in the same transaction.
	Consumed []inventory.Change
}

// CreateTreatment inserts a treatment with its teeth. When the new treatment
// is already complete, medications are consumed in the same transaction.
func (c *Coordinator) CreateTreatment(ctx context.Context, d treatment.Draft, medications []inventory.Consumption) (*TreatmentResult, error) {
	if err := c.machine.Validate(d.Type, d.Teeth); err != nil {
		return nil, err
	}
	if err := validateMedications(medications); err != nil {
		return nil, err
	}

	var res TreatmentResult
	err := c.inTx(ctx, "create_treatment", func(ctx context.Context, tx pgx.Tx) error {
		if d.AppointmentID != nil {
			if _, err := c.appointments.Get(ctx, tx, *d.AppointmentID); err != nil {
				if errors.Is(err, appointment.ErrAppointmentNotFound) {
					return apperr.Invalid("appointmentId", "appointment %s does not exist", *d.AppointmentID)
				}
				return err
			}
		}
		created, err := c.machine.Create(ctx, tx, d)
		if err != nil {
			return err
		}
		res.Treatment = *created
		res.Completed = created.Completed()
		if res.Completed && len(medications) > 0 {
			res.Consumed, err = c.ledger.BatchDecrementTx(ctx, tx, medications, consumptionMeta(created.ID, d.CreatedBy))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Completed {
		c.metrics.ObserveCompletion()
	}
	notify.Emit(ctx, c.notifier, c.logger, notify.TreatmentCreated, res.Treatment.ID, newTreatmentPayload(res.Treatment))
	c.ledger.PublishChanges(ctx, res.Consumed)
	return &res, nil
}

// CompleteTreatmentWithMedication replaces the treatment's teeth and, when
// every tooth is done and medications are given, consumes them from stock.
// Both happen in one transaction: insufficient stock for any item leaves the
// treatment exactly as it was.
func (c *Coordinator) CompleteTreatmentWithMedication(ctx context.Context, id uuid.UUID, u treatment.Update, medications []inventory.Consumption, actor string) (*TreatmentResult, error) {
	if err := c.machine.Validate(u.Type, u.Teeth); err != nil {
		return nil, err
	}
	if err := validateMedications(medications); err != nil {
		return nil, err
	}

	var res TreatmentResult
	var transitioned bool
	err := c.inTx(ctx, "complete_treatment", func(ctx context.Context, tx pgx.Tx) error {
		rep, err := c.machine.Replace(ctx, tx, id, u)
		if err != nil {
			return err
		}
		res.Treatment = rep.After
		res.Completed = treatment.DeriveCompletion(rep.After.Teeth)
		transitioned = rep.Completed()

		if res.Completed && len(medications) > 0 {
			res.Consumed, err = c.ledger.BatchDecrementTx(ctx, tx, medications, consumptionMeta(id, actor))
			if err != nil {
				return fmt.Errorf("consume medication for treatment %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("treatment_id", id.String()).Msg("treatment update rolled back")
		return nil, err
	}

	if transitioned {
		c.metrics.ObserveCompletion()
	}
	c.logger.Info().
		Str("treatment_id", id.String()).
		Bool("completed", res.Completed).
		Int("items_consumed", len(res.Consumed)).
		Msg("treatment updated")
	notify.Emit(ctx, c.notifier, c.logger, notify.TreatmentUpdated, id, newTreatmentPayload(res.Treatment))
	c.ledger.PublishChanges(ctx, res.Consumed)
	return &res, nil
}

// DeleteTreatment removes a treatment and its teeth. Stock already consumed
// stays consumed; the history keeps the treatment id.
func (c *Coordinator) DeleteTreatment(ctx context.Context, id uuid.UUID) error {
	var deleted *treatment.Treatment
	err := c.inTx(ctx, "delete_treatment", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		deleted, err = c.machine.Delete(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}

	notify.Emit(ctx, c.notifier, c.logger, notify.TreatmentDeleted, id, newTreatmentPayload(*deleted))
	return nil
}

func validateMedications(medications []inventory.Consumption) error {
	if len(medications) == 0 {
		return nil
	}
	_, err := inventory.MergeConsumptions(medications)
	return err
}

func consumptionMeta(treatmentID uuid.UUID, actor string) inventory.Meta {
	return inventory.Meta{
		ChangeType:  inventory.ChangePrescription,
		Note:        fmt.Sprintf("treatment %s", treatmentID),
		Actor:       actor,
		TreatmentID: &treatmentID,
	}
}
