package maintenance

import (
	"time"

	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/internal/validator"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusApproved   Status = "approved"
)

// Priority of a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Role of an authenticated actor.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleTech  Role = "tech"
	RoleUser  Role = "user"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the actor has the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Ticket is a maintenance work order for a device.
type Ticket struct {
	ID            uuid.UUID `json:"id"`
	Date          time.Time `json:"date"`
	ResponsibleID string    `json:"responsible_id"`
	DeviceID      string    `json:"device_id"`
	Status        Status    `json:"status"`
	ApprovedBy    *string   `json:"approved_by,omitempty"`
	DamageImage   *string   `json:"damage_image,omitempty"`
	Priority      Priority  `json:"priority"`
	Description   string    `json:"description"`
	CancelReason  *string   `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsResponsible reports whether actor is the ticket's assigned party
func (t *Ticket) IsResponsible(actor Actor) bool {
	return actor.UserID != "" && t.ResponsibleID == actor.UserID
}

// NewTicket holds the fields of a ticket to create.
type NewTicket struct {
	Date          time.Time
	ResponsibleID string
	DeviceID      string
	DamageImage   *string
	Priority      Priority
	Description   string
}

// Patch is a partial field update. Nil fields are left unchanged.
type Patch struct {
	Date          *time.Time `json:"date,omitempty"`
	ResponsibleID *string    `json:"responsible_id,omitempty"`
	DeviceID      *string    `json:"device_id,omitempty"`
	DamageImage   *string    `json:"damage_image,omitempty"`
	Priority      *Priority  `json:"priority,omitempty"`
	Description   *string    `json:"description,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.ResponsibleID == nil && p.DeviceID == nil &&
		p.DamageImage == nil && p.Priority == nil && p.Description == nil
}

// RestrictFields drops every submitted field that may not change while a
// ticket is in status. Status and approved_by are kept so validation still
// rejects them.
func RestrictFields(status Status, f validator.TicketFields) validator.TicketFields {
	kept := validator.TicketFields{Status: f.Status, ApprovedBy: f.ApprovedBy}
	switch status {
	case StatusPending:
		return f
	case StatusInProgress:
		kept.DamageImage = f.DamageImage
		kept.Description = f.Description
	}
	return kept
}

// Apply copies the patch fields onto t
func (p Patch) Apply(t *Ticket) {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.ResponsibleID != nil {
		t.ResponsibleID = *p.ResponsibleID
	}
	if p.DeviceID != nil {
		t.DeviceID = *p.DeviceID
	}
	if p.DamageImage != nil {
		t.DamageImage = p.DamageImage
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
}

// ListFilter narrows a ticket listing. Empty fields match everything.
type ListFilter struct {
	Status        Status
	DeviceID      string
	ResponsibleID string
	Limit         int
	Page          int
}

// Change is a conditional status update.
type Change struct {
	From         Status
	To           Status
	ApprovedBy   *string
	CancelReason *string
	At           time.Time
}
