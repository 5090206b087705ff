package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/maintenance"
	"github.com/septivank/iot-telemetry-hub/internal/validator"
	"go.uber.org/zap"
)

// TicketService is the maintenance ticket API.
type TicketService interface {
	Create(ctx context.Context, actor maintenance.Actor, fields validator.TicketFields) (*maintenance.Ticket, error)
	Get(ctx context.Context, id uuid.UUID) (*maintenance.Ticket, error)
	List(ctx context.Context, f maintenance.ListFilter) ([]maintenance.Ticket, error)
	Transition(ctx context.Context, id uuid.UUID, target maintenance.Status, actor maintenance.Actor) (*maintenance.Ticket, error)
	Approve(ctx context.Context, id uuid.UUID, actor maintenance.Actor) (*maintenance.Ticket, error)
	Cancel(ctx context.Context, id uuid.UUID, actor maintenance.Actor, reason string) (*maintenance.Ticket, error)
	Update(ctx context.Context, id uuid.UUID, actor maintenance.Actor, fields validator.TicketFields) (*maintenance.Ticket, error)
	Delete(ctx context.Context, id uuid.UUID, actor maintenance.Actor) error
}

// MaintenanceHandler serves the ticket routes.
type MaintenanceHandler struct {
	tickets TicketService
	live    LiveChannel
	auth    *Authenticator
	logger  *zap.Logger
}

// NewMaintenanceHandler creates the maintenance routes
func NewMaintenanceHandler(tickets TicketService, live LiveChannel, auth *Authenticator, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{tickets: tickets, live: live, auth: auth, logger: logger}
}

// Mount registers the routes
func (h *MaintenanceHandler) Mount(r chi.Router) {
	r.Get("/ws", h.live.ServeWS)

	staff := RequireRole(maintenance.RoleAdmin, maintenance.RoleTech)
	admin := RequireRole(maintenance.RoleAdmin)

	r.Route("/maintenance", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Get("/", h.list)
		r.With(staff).Post("/", h.create)
		r.Get("/{id}", h.get)
		r.With(staff).Put("/{id}", h.update)
		r.With(admin).Delete("/{id}", h.delete)
		r.With(staff).Patch("/{id}/status", h.status)
		r.With(admin).Patch("/{id}/approve", h.approve)
		r.With(staff).Patch("/{id}/cancel", h.cancel)
	})
}

type ticketRequest struct {
	Date          *string `json:"date"`
	ResponsibleID *string `json:"responsible_id"`
	DeviceID      *string `json:"device_id"`
	DamageImage   *string `json:"damage_image"`
	Priority      *string `json:"priority"`
	Description   *string `json:"description"`
	Status        *string `json:"status"`
	ApprovedBy    *string `json:"approved_by"`
}

func (t ticketRequest) fields() validator.TicketFields {
	return validator.TicketFields{
		Date:          t.Date,
		ResponsibleID: t.ResponsibleID,
		DeviceID:      t.DeviceID,
		DamageImage:   t.DamageImage,
		Priority:      t.Priority,
		Description:   t.Description,
		Status:        t.Status,
		ApprovedBy:    t.ApprovedBy,
	}
}

func ticketID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errs.Validation("invalid ticket id")
	}
	return id, nil
}

func mustActor(r *http.Request) maintenance.Actor {
	actor, _ := ActorFrom(r.Context())
	return actor
}

func (h *MaintenanceHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	page, err := queryInt(q.Get("page"), "page")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	tickets, err := h.tickets.List(r.Context(), maintenance.ListFilter{
		Status:        maintenance.Status(q.Get("status")),
		DeviceID:      q.Get("device_id"),
		ResponsibleID: q.Get("responsible_id"),
		Limit:         limit,
		Page:          page,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOKWithMeta(w, tickets, map[string]int{"count": len(tickets)})
}

func (h *MaintenanceHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := ticketID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	ticket, err := h.tickets.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, ticket)
}

func (h *MaintenanceHandler) create(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	ticket, err := h.tickets.Create(r.Context(), mustActor(r), req.fields())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondCreated(w, ticket)
}

func (h *MaintenanceHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := ticketID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req ticketRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	ticket, err := h.tickets.Update(r.Context(), id, mustActor(r), req.fields())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, ticket)
}

func (h *MaintenanceHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := ticketID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.tickets.Delete(r.Context(), id, mustActor(r)); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, map[string]string{"id": id.String(), "status": "deleted"})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *MaintenanceHandler) status(w http.ResponseWriter, r *http.Request) {
	id, err := ticketID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !validator.ValidStatus(req.Status) {
		respondError(w, r, h.logger, errs.Validation("status must be one of pending, in_progress, completed, cancelled, approved"))
		return
	}

	ticket, err := h.tickets.Transition(r.Context(), id, maintenance.Status(req.Status), mustActor(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, ticket)
}

func (h *MaintenanceHandler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := ticketID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	ticket, err := h.tickets.Approve(r.Context(), id, mustActor(r))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, ticket)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *MaintenanceHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := ticketID(r)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, r, h.logger, err)
		return
	}
	ticket, err := h.tickets.Cancel(r.Context(), id, mustActor(r), req.Reason)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondOK(w, ticket)
}
