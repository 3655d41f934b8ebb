// Package incident implements component C7: the incident state machine.
// It is the sole authority for acknowledgment and cancellation; every
// transition runs under the C1 advisory lock inside one transaction, and
// emits a domain event after commit that C8 (cascade) reacts to; transition
// metrics are incremented directly here (spec §4.7).
package incident

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/antonmal/protectogram/internal/adapter/pubsub"
	"github.com/antonmal/protectogram/internal/domain/errs"
	"github.com/antonmal/protectogram/internal/domain/event"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/metrics"
	"github.com/antonmal/protectogram/internal/store"
)

// Service is the C7 contract consumed by the webhook and admin handlers.
type Service interface {
	Open(ctx context.Context, travelerID uuid.UUID) (*model.Incident, error)
	Acknowledge(ctx context.Context, incidentID, byUserID uuid.UUID, via model.AckVia) (*model.Incident, error)
	Cancel(ctx context.Context, incidentID, byUserID uuid.UUID) (*model.Incident, error)
}

type service struct {
	st   store.Store
	bus  pubsub.EventDispatcher
	log  *slog.Logger
}

func New(st store.Store, bus pubsub.EventDispatcher, log *slog.Logger) Service {
	return &service{st: st, bus: bus, log: log.With("component", "incident")}
}

// Open creates a new incident and, once committed, publishes
// IncidentOpened so the cascade engine seeds guardian contact (spec §4.7
// open_incident).
func (s *service) Open(ctx context.Context, travelerID uuid.UUID) (*model.Incident, error) {
	inc := &model.Incident{
		ID:         uuid.New(),
		TravelerID: travelerID,
		Status:     model.IncidentOpen,
		CreatedAt:  time.Now(),
	}

	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateIncident(ctx, inc); err != nil {
			return err
		}
		return tx.AppendIncidentEvent(ctx, &model.IncidentEvent{
			ID:         uuid.New(),
			IncidentID: inc.ID,
			Kind:       model.IncidentEventOpened,
			OccurredAt: time.Now(),
			Detail:     map[string]any{"traveler_id": travelerID.String()},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("incident: open: %w", err)
	}

	if err := s.bus.Publish(ctx, event.NewIncidentOpened(inc.ID, travelerID)); err != nil {
		s.log.ErrorContext(ctx, "failed to publish incident opened", "incident_id", inc.ID, "error", err)
	}

	return inc, nil
}

// Acknowledge implements spec §4.7: idempotent once terminal, serialized by
// the advisory lock. A second call for an already-acknowledged incident is
// a no-op that returns the stored decision (L1).
func (s *service) Acknowledge(ctx context.Context, incidentID, byUserID uuid.UUID, via model.AckVia) (*model.Incident, error) {
	var inc *model.Incident
	var transitioned bool

	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockIncident(ctx, incidentID); err != nil {
			return err
		}

		current, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("incident: acknowledge: %w", errs.ErrValidation)
		}
		inc = current

		if !current.IsOpen() {
			// Already terminal: return the existing decision unchanged (L1).
			return nil
		}

		now := time.Now()
		current.Status = model.IncidentAcknowledged
		current.AcknowledgedAt = &now
		current.AcknowledgedByID = &byUserID
		current.AcknowledgedVia = &via

		if err := tx.UpdateIncidentStatus(ctx, current); err != nil {
			return err
		}
		if err := tx.AppendIncidentEvent(ctx, &model.IncidentEvent{
			ID:          uuid.New(),
			IncidentID:  incidentID,
			Kind:        model.IncidentEventAcknowledged,
			ActorUserID: &byUserID,
			OccurredAt:  now,
			Detail:      map[string]any{"via": string(via)},
		}); err != nil {
			return err
		}
		if _, err := tx.CancelScheduledActionsForIncident(ctx, incidentID); err != nil {
			return err
		}

		inc = current
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("incident: acknowledge: %w", err)
	}

	if transitioned {
		metrics.IncidentTransitions.WithLabelValues(string(model.IncidentAcknowledged)).Inc()
		if err := s.bus.Publish(ctx, event.NewIncidentAcknowledged(incidentID, byUserID)); err != nil {
			s.log.ErrorContext(ctx, "failed to publish incident acknowledged", "incident_id", incidentID, "error", err)
		}
	}

	return inc, nil
}

// Cancel mirrors Acknowledge; only the traveler or an admin should invoke
// it, a check the caller (webhook/admin handler) is responsible for since
// this layer has no notion of request principal.
func (s *service) Cancel(ctx context.Context, incidentID, byUserID uuid.UUID) (*model.Incident, error) {
	var inc *model.Incident
	var transitioned bool

	err := s.st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockIncident(ctx, incidentID); err != nil {
			return err
		}

		current, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("incident: cancel: %w", errs.ErrValidation)
		}
		inc = current

		if !current.IsOpen() {
			return nil
		}

		now := time.Now()
		current.Status = model.IncidentCanceled
		current.CanceledAt = &now
		current.CanceledByID = &byUserID

		if err := tx.UpdateIncidentStatus(ctx, current); err != nil {
			return err
		}
		if err := tx.AppendIncidentEvent(ctx, &model.IncidentEvent{
			ID:          uuid.New(),
			IncidentID:  incidentID,
			Kind:        model.IncidentEventCanceled,
			ActorUserID: &byUserID,
			OccurredAt:  now,
		}); err != nil {
			return err
		}
		if _, err := tx.CancelScheduledActionsForIncident(ctx, incidentID); err != nil {
			return err
		}

		inc = current
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("incident: cancel: %w", err)
	}

	if transitioned {
		metrics.IncidentTransitions.WithLabelValues(string(model.IncidentCanceled)).Inc()
		if err := s.bus.Publish(ctx, event.NewIncidentCanceled(incidentID, byUserID)); err != nil {
			s.log.ErrorContext(ctx, "failed to publish incident canceled", "incident_id", incidentID, "error", err)
		}
	}

	return inc, nil
}
