package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/tools/timeparser"
)

const (
	minCancelReason = 5
	maxCancelReason = 500
	maxDescription  = 1000
	maxIDLength     = 64
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Errors  []FieldError
}

func (r *ValidationResult) fail(field, format string, args ...any) {
	r.IsValid = false
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns nil for a valid result, otherwise an errs.ErrValidation error
// listing every failed rule
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return errs.Validation("%s", strings.Join(msgs, "; "))
}

// TicketFields is the raw ticket input. Nil pointers are absent fields.
type TicketFields struct {
	Date          *string
	ResponsibleID *string
	DeviceID      *string
	DamageImage   *string
	Priority      *string
	Description   *string
	Status        *string
	ApprovedBy    *string
}

// Validator checks maintenance ticket input
type Validator struct {
	now func() time.Time
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateCreate checks a new ticket. Date, responsible and device are required.
func (v *Validator) ValidateCreate(f TicketFields) ValidationResult {
	result := ValidationResult{IsValid: true}

	if f.Date == nil || strings.TrimSpace(*f.Date) == "" {
		result.fail("date", "date is required")
	}
	if f.ResponsibleID == nil || strings.TrimSpace(*f.ResponsibleID) == "" {
		result.fail("responsible_id", "responsible is required")
	}
	if f.DeviceID == nil || strings.TrimSpace(*f.DeviceID) == "" {
		result.fail("device_id", "device is required")
	}
	if f.Status != nil {
		result.fail("status", "status cannot be set on creation")
	}
	if f.ApprovedBy != nil {
		result.fail("approved_by", "approved_by cannot be set directly")
	}

	v.checkOptional(&result, f)
	return result
}

// ValidateUpdate checks a partial ticket update. Status and approval can only
// change through their dedicated operations.
func (v *Validator) ValidateUpdate(f TicketFields) ValidationResult {
	result := ValidationResult{IsValid: true}

	if f.Status != nil {
		result.fail("status", "status cannot be changed directly; use /status, /approve or /cancel")
	}
	if f.ApprovedBy != nil {
		result.fail("approved_by", "approved_by cannot be set directly")
	}

	v.checkOptional(&result, f)
	return result
}

func (v *Validator) checkOptional(result *ValidationResult, f TicketFields) {
	if f.Date != nil && strings.TrimSpace(*f.Date) != "" {
		if _, err := v.ParseScheduleDate(*f.Date); err != nil {
			result.fail("date", "%v", err)
		}
	}
	if f.ResponsibleID != nil && !validID(*f.ResponsibleID) {
		result.fail("responsible_id", "invalid responsible id")
	}
	if f.DeviceID != nil && !validID(*f.DeviceID) {
		result.fail("device_id", "invalid device id")
	}
	if f.Priority != nil && !ValidPriority(*f.Priority) {
		result.fail("priority", "priority must be one of low, medium, high")
	}
	if f.Description != nil && len(*f.Description) > maxDescription {
		result.fail("description", "description must be at most %d characters", maxDescription)
	}
}

// ParseScheduleDate parses an ISO-8601 date that must not fall before today
func (v *Validator) ParseScheduleDate(value string) (time.Time, error) {
	t, err := timeparser.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be ISO 8601 (e.g. 2025-07-17T10:00:00Z)")
	}

	now := v.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if t.Before(today) {
		return time.Time{}, fmt.Errorf("date cannot be before today")
	}
	return t, nil
}

// ValidateCancelReason accepts an empty reason or one of 5 to 500 characters
func ValidateCancelReason(reason string) error {
	if reason == "" {
		return nil
	}
	n := len([]rune(reason))
	if n < minCancelReason || n > maxCancelReason {
		return errs.Validation("reason must be between %d and %d characters", minCancelReason, maxCancelReason)
	}
	return nil
}

// ValidPriority reports whether p is a known priority
func ValidPriority(p string) bool {
	switch p {
	case "low", "medium", "high":
		return true
	default:
		return false
	}
}

// ValidStatus reports whether s is a known ticket status
func ValidStatus(s string) bool {
	switch s {
	case "pending", "in_progress", "completed", "cancelled", "approved":
		return true
	default:
		return false
	}
}

func validID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && len(id) <= maxIDLength && !strings.ContainsAny(id, " /\\")
}
