package maintenance

import (
	"errors"
	"testing"

	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/validator"
	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusApproved}

func TestCanTransition_Table(t *testing.T) {
	legal := map[Status][]Status{
		StatusPending:    {StatusInProgress, StatusCancelled},
		StatusInProgress: {StatusCompleted, StatusCancelled},
		StatusCompleted:  {StatusApproved},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, l := range legal[from] {
				if l == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	assert.True(t, IsTerminal(StatusCancelled))
	assert.True(t, IsTerminal(StatusApproved))
	assert.False(t, IsTerminal(StatusCompleted))
}

func TestAuthorize(t *testing.T) {
	admin := Actor{UserID: "admin-1", Role: RoleAdmin}
	tech := Actor{UserID: "tech-1", Role: RoleTech}
	otherTech := Actor{UserID: "tech-2", Role: RoleTech}
	user := Actor{UserID: "tech-1", Role: RoleUser}

	tests := []struct {
		name   string
		status Status
		target Status
		actor  Actor
		want   error
	}{
		{"responsible starts work", StatusPending, StatusInProgress, tech, nil},
		{"other tech cannot start", StatusPending, StatusInProgress, otherTech, errs.ErrForbidden},
		{"admin is not responsible", StatusPending, StatusInProgress, admin, errs.ErrForbidden},
		{"user role cannot start", StatusPending, StatusInProgress, user, errs.ErrForbidden},
		{"responsible completes", StatusInProgress, StatusCompleted, tech, nil},
		{"admin cancels", StatusInProgress, StatusCancelled, admin, nil},
		{"responsible cancels", StatusPending, StatusCancelled, tech, nil},
		{"other tech cannot cancel", StatusPending, StatusCancelled, otherTech, errs.ErrForbidden},
		{"admin approves", StatusCompleted, StatusApproved, admin, nil},
		{"tech cannot approve", StatusCompleted, StatusApproved, tech, errs.ErrForbidden},
		{"approve before completion", StatusInProgress, StatusApproved, admin, errs.ErrInvalidTransition},
		{"skip to completed", StatusPending, StatusCompleted, tech, errs.ErrInvalidTransition},
		{"reopen cancelled", StatusCancelled, StatusPending, admin, errs.ErrInvalidTransition},
		{"edge checked before role", StatusApproved, StatusPending, user, errs.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := &Ticket{Status: tt.status, ResponsibleID: "tech-1"}
			err := Authorize(ticket, tt.target, tt.actor)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestRules_Ordered(t *testing.T) {
	rules := Rules()
	assert.Len(t, rules, 5)
	assert.Equal(t, StatusPending, rules[0].From)
	assert.Equal(t, StatusInProgress, rules[0].To)
	assert.Equal(t, StatusCompleted, rules[4].From)
	assert.Equal(t, StatusApproved, rules[4].To)
}

func TestRestrictFields(t *testing.T) {
	desc := "bearing replaced"
	image := "https://img.example/1.png"
	device := "dev-9"
	date := "2001-01-01"
	priority := "urgent"
	status := "completed"
	f := validator.TicketFields{
		Date:        &date,
		DeviceID:    &device,
		DamageImage: &image,
		Priority:    &priority,
		Description: &desc,
		Status:      &status,
	}

	assert.Equal(t, f, RestrictFields(StatusPending, f))

	inProgress := RestrictFields(StatusInProgress, f)
	assert.Nil(t, inProgress.Date)
	assert.Nil(t, inProgress.DeviceID)
	assert.Nil(t, inProgress.Priority)
	assert.Equal(t, &desc, inProgress.Description)
	assert.Equal(t, &image, inProgress.DamageImage)
	assert.Equal(t, &status, inProgress.Status, "status is kept so it can be rejected")

	for _, st := range []Status{StatusCompleted, StatusCancelled, StatusApproved} {
		restricted := RestrictFields(st, f)
		assert.Equal(t, validator.TicketFields{Status: &status}, restricted, st)
	}
}
