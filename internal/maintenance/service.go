package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/validator"
	"go.uber.org/zap"
)

// Notification types emitted on the maintenance channel.
const (
	EventCreated       = "maintenance_created"
	EventStatusChanged = "maintenance_status_changed"
	EventApproved      = "maintenance_approved"
	EventCancelled     = "maintenance_cancelled"
	EventUpdated       = "maintenance_updated"
	EventDeleted       = "maintenance_deleted"
)

// Notifier delivers ticket changes to live clients. Publish reaches the
// ticket's room and clients watching every ticket; Broadcast reaches all.
type Notifier interface {
	Publish(id, eventType string, data any) int
	Broadcast(eventType string, data any) int
}

// Service applies the ticket state machine on top of a Repository.
type Service struct {
	repo      Repository
	validator *validator.Validator
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a ticket service. notifier may be nil.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: validator.NewValidator(),
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates and stores a new pending ticket
func (s *Service) Create(ctx context.Context, actor Actor, fields validator.TicketFields) (*Ticket, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleTech {
		return nil, errs.Forbidden("role %q may not create tickets", actor.Role)
	}
	if err := s.validator.ValidateCreate(fields).Err(); err != nil {
		return nil, err
	}

	date, err := s.validator.ParseScheduleDate(*fields.Date)
	if err != nil {
		return nil, errs.Validation("%v", err)
	}

	now := s.now().UTC()
	t := &Ticket{
		ID:            uuid.New(),
		Date:          date.UTC(),
		ResponsibleID: *fields.ResponsibleID,
		DeviceID:      *fields.DeviceID,
		Status:        StatusPending,
		DamageImage:   fields.DamageImage,
		Priority:      PriorityMedium,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if fields.Priority != nil {
		t.Priority = Priority(*fields.Priority)
	}
	if fields.Description != nil {
		t.Description = *fields.Description
	}

	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", t.ID.String()),
		zap.String("device_id", t.DeviceID),
		zap.String("actor", actor.UserID),
	)
	s.announce(t.ID, EventCreated, t)
	return t, nil
}

// Get returns one ticket
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	return s.repo.Get(ctx, id)
}

// List returns tickets matching f
func (s *Service) List(ctx context.Context, f ListFilter) ([]Ticket, error) {
	if f.Status != "" && !validator.ValidStatus(string(f.Status)) {
		return nil, errs.Validation("unknown status %q", f.Status)
	}
	return s.repo.List(ctx, f)
}

// Transition moves a ticket to target. Missing tickets fail with
// errs.ErrNotFound, illegal edges with errs.ErrInvalidTransition and
// unauthorized actors with errs.ErrForbidden, in that order.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target Status, actor Actor) (*Ticket, error) {
	if !validator.ValidStatus(string(target)) {
		return nil, errs.Validation("unknown status %q", target)
	}
	return s.transition(ctx, id, target, actor, "")
}

// Approve moves a completed ticket to approved and records the approver
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor Actor) (*Ticket, error) {
	return s.transition(ctx, id, StatusApproved, actor, "")
}

// Cancel moves a pending or in-progress ticket to cancelled. reason is
// optional.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Ticket, error) {
	if err := validator.ValidateCancelReason(reason); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, StatusCancelled, actor, reason)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target Status, actor Actor, reason string) (*Ticket, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(current, target, actor); err != nil {
		return nil, err
	}

	change := Change{From: current.Status, To: target, At: s.now().UTC()}
	if target == StatusApproved {
		approver := actor.UserID
		change.ApprovedBy = &approver
	}
	if target == StatusCancelled && reason != "" {
		change.CancelReason = &reason
	}

	updated, err := s.repo.UpdateStatus(ctx, id, change)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket status changed",
		zap.String("ticket_id", id.String()),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)),
		zap.String("actor", actor.UserID),
	)
	s.notify(id, transitionEvent(target), updated)
	return updated, nil
}

func transitionEvent(target Status) string {
	switch target {
	case StatusApproved:
		return EventApproved
	case StatusCancelled:
		return EventCancelled
	default:
		return EventStatusChanged
	}
}

// Update applies a bounded field update. Approved tickets are rejected;
// otherwise fields the current status does not allow are dropped before
// they are validated.
func (s *Service) Update(ctx context.Context, id uuid.UUID, actor Actor, fields validator.TicketFields) (*Ticket, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusApproved {
		return nil, errs.Conflict("ticket %s is approved and cannot be modified", id)
	}
	if !actor.IsAdmin() && !current.IsResponsible(actor) {
		return nil, errs.Forbidden("only an admin or the responsible technician can update this ticket")
	}

	fields = RestrictFields(current.Status, fields)
	if err := s.validator.ValidateUpdate(fields).Err(); err != nil {
		return nil, err
	}
	patch, err := s.buildPatch(fields)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated, err := s.repo.UpdateFields(ctx, id, current.Status, patch, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket updated", zap.String("ticket_id", id.String()), zap.String("actor", actor.UserID))
	s.notify(id, EventUpdated, updated)
	return updated, nil
}

func (s *Service) buildPatch(fields validator.TicketFields) (Patch, error) {
	p := Patch{
		ResponsibleID: fields.ResponsibleID,
		DeviceID:      fields.DeviceID,
		DamageImage:   fields.DamageImage,
		Description:   fields.Description,
	}
	if fields.Date != nil {
		date, err := s.validator.ParseScheduleDate(*fields.Date)
		if err != nil {
			return Patch{}, errs.Validation("%v", err)
		}
		date = date.UTC()
		p.Date = &date
	}
	if fields.Priority != nil {
		priority := Priority(*fields.Priority)
		p.Priority = &priority
	}
	return p, nil
}

// Delete removes a pending or cancelled ticket. Only admins may delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return errs.Forbidden("only an admin can delete tickets")
	}
	if !Deletable(current.Status) {
		return errs.Conflict("ticket %s cannot be deleted while %s", id, current.Status)
	}

	if err := s.repo.Delete(ctx, id, current.Status); err != nil {
		return err
	}

	s.logger.Info("ticket deleted", zap.String("ticket_id", id.String()), zap.String("actor", actor.UserID))
	s.notify(id, EventDeleted, map[string]string{"id": id.String()})
	return nil
}

// notify publishes to the ticket's room
func (s *Service) notify(id uuid.UUID, eventType string, data any) {
	s.safely(id, eventType, func(n Notifier) { n.Publish(id.String(), eventType, data) })
}

// announce reaches every connected client. New tickets have no subscribers yet.
func (s *Service) announce(id uuid.UUID, eventType string, data any) {
	s.safely(id, eventType, func(n Notifier) { n.Broadcast(eventType, data) })
}

// safely never fails the operation that triggered it
func (s *Service) safely(id uuid.UUID, eventType string, send func(Notifier)) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ticket notification panicked",
				zap.String("ticket_id", id.String()),
				zap.String("type", eventType),
				zap.Any("panic", r),
			)
		}
	}()
	send(s.notifier)
}
