// Package storetest provides an in-memory store.Store fake shared by the
// incident, cascade, inbox, outbox, and scheduler package tests, so each
// suite can drive real state-machine logic against the store.Store/store.Tx
// contracts without a database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonmal/protectogram/internal/domain/errs"
	"github.com/antonmal/protectogram/internal/domain/model"
	"github.com/antonmal/protectogram/internal/store"
)

// Fake implements store.Store and store.Tx over plain maps guarded by one
// mutex, which also gives WithTx the same single-writer-per-incident
// serialization the real advisory lock provides.
type Fake struct {
	mu sync.Mutex

	Users            map[uuid.UUID]*model.User
	UsersByChatID    map[string]uuid.UUID
	GuardianLinks    map[uuid.UUID]*model.GuardianLink
	Incidents        map[uuid.UUID]*model.Incident
	IncidentEvents   []model.IncidentEvent
	Alerts           map[uuid.UUID]*model.Alert
	CallAttempts     map[uuid.UUID]*model.CallAttempt
	InboxEvents      map[string]*model.InboxEvent // key: provider+"|"+providerEventID
	OutboxMessages   map[string]*model.OutboxMessage
	ScheduledActions map[uuid.UUID]*model.ScheduledAction

	// LockFailures, if positive, makes the next N LockIncident calls return
	// errs.ErrContention, for exercising contention-handling paths.
	LockFailures int
}

func New() *Fake {
	return &Fake{
		Users:            map[uuid.UUID]*model.User{},
		UsersByChatID:    map[string]uuid.UUID{},
		GuardianLinks:    map[uuid.UUID]*model.GuardianLink{},
		Incidents:        map[uuid.UUID]*model.Incident{},
		Alerts:           map[uuid.UUID]*model.Alert{},
		CallAttempts:     map[uuid.UUID]*model.CallAttempt{},
		InboxEvents:      map[string]*model.InboxEvent{},
		OutboxMessages:   map[string]*model.OutboxMessage{},
		ScheduledActions: map[uuid.UUID]*model.ScheduledAction{},
	}
}

func (f *Fake) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, f)
}

func (f *Fake) LockIncident(ctx context.Context, incidentID uuid.UUID) error {
	if f.LockFailures > 0 {
		f.LockFailures--
		return errs.ErrContention
	}
	return nil
}

// --- Reader --------------------------------------------------------------

func (f *Fake) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return f.Users[id], nil
}

func (f *Fake) GetUserByChatProviderID(ctx context.Context, chatProviderID string) (*model.User, error) {
	id, ok := f.UsersByChatID[chatProviderID]
	if !ok {
		return nil, nil
	}
	return f.Users[id], nil
}

func (f *Fake) ActiveGuardianLinks(ctx context.Context, travelerID uuid.UUID) ([]model.GuardianLink, error) {
	var out []model.GuardianLink
	for _, l := range f.GuardianLinks {
		if l.TravelerID == travelerID && l.Status == model.GuardianLinkActive {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityRank != out[j].PriorityRank {
			return out[i].PriorityRank < out[j].PriorityRank
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *Fake) GetIncident(ctx context.Context, id uuid.UUID) (*model.Incident, error) {
	inc, ok := f.Incidents[id]
	if !ok {
		return nil, nil
	}
	cp := *inc
	return &cp, nil
}

func (f *Fake) GetAlert(ctx context.Context, incidentID, audienceID uuid.UUID, channel model.AlertChannel) (*model.Alert, error) {
	for _, a := range f.Alerts {
		if a.IncidentID == incidentID && a.AudienceUserID == audienceID && a.Channel == channel {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) GetAlertByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	a, ok := f.Alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *Fake) AlertsForIncident(ctx context.Context, incidentID uuid.UUID) ([]model.Alert, error) {
	var out []model.Alert
	for _, a := range f.Alerts {
		if a.IncidentID == incidentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *Fake) PendingCallAttempt(ctx context.Context, alertID uuid.UUID) (*model.CallAttempt, error) {
	for _, a := range f.CallAttempts {
		if a.AlertID == alertID && !a.Result.IsTerminal() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) CallAttemptsForAlert(ctx context.Context, alertID uuid.UUID) ([]model.CallAttempt, error) {
	var out []model.CallAttempt
	for _, a := range f.CallAttempts {
		if a.AlertID == alertID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *Fake) GetCallAttemptByProviderCallID(ctx context.Context, providerCallID string) (*model.CallAttempt, error) {
	for _, a := range f.CallAttempts {
		if a.ProviderCallID == providerCallID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) GetOutboxByKey(ctx context.Context, idempotencyKey string) (*model.OutboxMessage, error) {
	msg, ok := f.OutboxMessages[idempotencyKey]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (f *Fake) ScheduledActionsForIncident(ctx context.Context, incidentID uuid.UUID, state model.ScheduledActionState) ([]model.ScheduledAction, error) {
	var out []model.ScheduledAction
	for _, a := range f.ScheduledActions {
		if a.IncidentID == incidentID && a.State == state {
			out = append(out, *a)
		}
	}
	return out, nil
}

// --- Writer ----------------------------------------------------------------

func (f *Fake) UpsertUser(ctx context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	f.Users[u.ID] = &cp
	if u.ChatProviderID != "" {
		f.UsersByChatID[u.ChatProviderID] = u.ID
	}
	return nil
}

func (f *Fake) CreateIncident(ctx context.Context, incident *model.Incident) error {
	cp := *incident
	f.Incidents[incident.ID] = &cp
	return nil
}

func (f *Fake) UpdateIncidentStatus(ctx context.Context, incident *model.Incident) error {
	if _, ok := f.Incidents[incident.ID]; !ok {
		return errs.ErrValidation
	}
	cp := *incident
	f.Incidents[incident.ID] = &cp
	return nil
}

func (f *Fake) AppendIncidentEvent(ctx context.Context, ev *model.IncidentEvent) error {
	f.IncidentEvents = append(f.IncidentEvents, *ev)
	return nil
}

func (f *Fake) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	cp := *alert
	f.Alerts[alert.ID] = &cp
	return nil
}

func (f *Fake) UpdateAlert(ctx context.Context, alert *model.Alert) error {
	if _, ok := f.Alerts[alert.ID]; !ok {
		return errs.ErrValidation
	}
	cp := *alert
	f.Alerts[alert.ID] = &cp
	return nil
}

func (f *Fake) CreateCallAttempt(ctx context.Context, attempt *model.CallAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	cp := *attempt
	f.CallAttempts[attempt.ID] = &cp
	return nil
}

func (f *Fake) UpdateCallAttempt(ctx context.Context, attempt *model.CallAttempt) error {
	if _, ok := f.CallAttempts[attempt.ID]; !ok {
		return errs.ErrValidation
	}
	cp := *attempt
	f.CallAttempts[attempt.ID] = &cp
	return nil
}

func (f *Fake) RecordInboxEvent(ctx context.Context, ev *model.InboxEvent) (bool, error) {
	key := ev.Provider + "|" + ev.ProviderEventID
	if _, exists := f.InboxEvents[key]; exists {
		return false, nil
	}
	cp := *ev
	f.InboxEvents[key] = &cp
	return true, nil
}

func (f *Fake) MarkInboxProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	for _, ev := range f.InboxEvents {
		if ev.ID == id {
			ev.ProcessedAt = &processedAt
			return nil
		}
	}
	return errs.ErrValidation
}

func (f *Fake) SweepUnprocessedInbox(ctx context.Context, olderThan time.Duration) ([]model.InboxEvent, error) {
	var out []model.InboxEvent
	cutoff := time.Now().Add(-olderThan)
	for _, ev := range f.InboxEvents {
		if ev.ProcessedAt == nil && ev.ReceivedAt.Before(cutoff) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (f *Fake) InsertOutboxPending(ctx context.Context, msg *model.OutboxMessage) (bool, *model.OutboxMessage, error) {
	if existing, ok := f.OutboxMessages[msg.IdempotencyKey]; ok {
		cp := *existing
		return false, &cp, nil
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	cp := *msg
	f.OutboxMessages[msg.IdempotencyKey] = &cp
	return true, nil, nil
}

func (f *Fake) MarkOutboxSent(ctx context.Context, idempotencyKey, providerMessageID string) error {
	msg, ok := f.OutboxMessages[idempotencyKey]
	if !ok {
		return errs.ErrValidation
	}
	msg.Status = model.OutboxSent
	msg.ProviderMessageID = providerMessageID
	msg.UpdatedAt = time.Now()
	return nil
}

func (f *Fake) MarkOutboxFailed(ctx context.Context, idempotencyKey, lastError string) error {
	msg, ok := f.OutboxMessages[idempotencyKey]
	if !ok {
		return errs.ErrValidation
	}
	msg.Status = model.OutboxFailed
	msg.LastError = lastError
	msg.UpdatedAt = time.Now()
	return nil
}

func (f *Fake) CreateScheduledAction(ctx context.Context, action *model.ScheduledAction) error {
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	action.State = model.ScheduledActionScheduled
	cp := *action
	f.ScheduledActions[action.ID] = &cp
	return nil
}

func (f *Fake) CancelScheduledActionsForIncident(ctx context.Context, incidentID uuid.UUID) (int, error) {
	n := 0
	for _, a := range f.ScheduledActions {
		if a.IncidentID == incidentID && a.State == model.ScheduledActionScheduled {
			a.State = model.ScheduledActionCanceled
			n++
		}
	}
	return n, nil
}

func (f *Fake) ClaimDueScheduledActions(ctx context.Context, limit int) ([]model.ScheduledAction, error) {
	var due []*model.ScheduledAction
	now := time.Now()
	for _, a := range f.ScheduledActions {
		if a.State == model.ScheduledActionScheduled && !a.RunAt.After(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]model.ScheduledAction, 0, len(due))
	for _, a := range due {
		a.State = model.ScheduledActionRunning
		claimedAt := now
		a.ClaimedAt = &claimedAt
		out = append(out, *a)
	}
	return out, nil
}

func (f *Fake) MarkScheduledActionDone(ctx context.Context, id uuid.UUID) error {
	a, ok := f.ScheduledActions[id]
	if !ok {
		return errs.ErrValidation
	}
	a.State = model.ScheduledActionDone
	return nil
}

func (f *Fake) MarkScheduledActionFailed(ctx context.Context, id uuid.UUID, attempts int) error {
	a, ok := f.ScheduledActions[id]
	if !ok {
		return errs.ErrValidation
	}
	a.State = model.ScheduledActionFailed
	a.Attempts = attempts
	return nil
}

func (f *Fake) RescheduleAction(ctx context.Context, id uuid.UUID, runAt time.Time, attempts int) error {
	a, ok := f.ScheduledActions[id]
	if !ok {
		return errs.ErrValidation
	}
	a.State = model.ScheduledActionScheduled
	a.RunAt = runAt
	a.Attempts = attempts
	a.ClaimedAt = nil
	return nil
}

// RecoverStuckScheduledActions keys off ClaimedAt, not RunAt: a backlogged
// row whose RunAt was already older than olderThan when it was claimed must
// not look stuck the instant it's picked up.
func (f *Fake) RecoverStuckScheduledActions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, a := range f.ScheduledActions {
		if a.State == model.ScheduledActionRunning && a.ClaimedAt != nil && a.ClaimedAt.Before(cutoff) {
			a.State = model.ScheduledActionScheduled
			a.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

var _ store.Store = (*Fake)(nil)
var _ store.Tx = (*Fake)(nil)
