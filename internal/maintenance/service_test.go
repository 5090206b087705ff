package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
	"github.com/septivank/iot-telemetry-hub/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin     = Actor{UserID: "admin-1", Role: RoleAdmin}
	tech      = Actor{UserID: "tech-1", Role: RoleTech}
	otherTech = Actor{UserID: "tech-2", Role: RoleTech}
)

func strPtr(s string) *string { return &s }

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingNotifier) {
	t.Helper()
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC) }
	return svc, repo, notifier
}

func seedTicket(repo *memoryRepo, status Status) Ticket {
	t := Ticket{
		ID:            uuid.New(),
		Date:          time.Date(2030, 2, 1, 9, 0, 0, 0, time.UTC),
		ResponsibleID: "tech-1",
		DeviceID:      "dev-1",
		Status:        status,
		Priority:      PriorityMedium,
		Description:   "noisy fan",
	}
	repo.put(t)
	return t
}

func TestService_Create(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	ticket, err := svc.Create(context.Background(), tech, validator.TicketFields{
		Date:          strPtr("2099-05-01T08:00:00Z"),
		ResponsibleID: strPtr("tech-1"),
		DeviceID:      strPtr("dev-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, ticket.Status)
	assert.Equal(t, PriorityMedium, ticket.Priority)
	assert.Nil(t, ticket.ApprovedBy)

	stored, err := repo.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", stored.DeviceID)
	assert.Equal(t, []published{{ID: ticket.ID.String(), Type: EventCreated, Broadcast: true}}, notifier.all())
}

func TestService_CreateRejects(t *testing.T) {
	svc, _, notifier := newTestService(t)
	valid := validator.TicketFields{
		Date:          strPtr("2099-05-01"),
		ResponsibleID: strPtr("tech-1"),
		DeviceID:      strPtr("dev-1"),
	}

	_, err := svc.Create(context.Background(), Actor{UserID: "u-1", Role: RoleUser}, valid)
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	past := valid
	past.Date = strPtr("2001-01-01")
	_, err = svc.Create(context.Background(), admin, past)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	badPriority := valid
	badPriority.Priority = strPtr("urgent")
	_, err = svc.Create(context.Background(), admin, badPriority)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	assert.Empty(t, notifier.all())
}

func TestService_FullLifecycle(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()
	seeded := seedTicket(repo, StatusPending)

	ticket, err := svc.Transition(ctx, seeded.ID, StatusInProgress, tech)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, ticket.Status)

	ticket, err = svc.Transition(ctx, seeded.ID, StatusCompleted, tech)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ticket.Status)

	ticket, err = svc.Approve(ctx, seeded.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, ticket.Status)
	require.NotNil(t, ticket.ApprovedBy)
	assert.Equal(t, "admin-1", *ticket.ApprovedBy)

	events := notifier.all()
	require.Len(t, events, 3)
	assert.Equal(t, EventStatusChanged, events[0].Type)
	assert.Equal(t, EventStatusChanged, events[1].Type)
	assert.Equal(t, EventApproved, events[2].Type)
}

func TestService_TransitionErrors(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	_, err := svc.Transition(ctx, uuid.New(), StatusInProgress, tech)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	approved := seedTicket(repo, StatusApproved)
	_, err = svc.Transition(ctx, approved.ID, StatusPending, tech)
	var te *errs.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "approved", te.From)
	assert.Equal(t, "pending", te.To)

	pending := seedTicket(repo, StatusPending)
	_, err = svc.Transition(ctx, pending.ID, StatusInProgress, otherTech)
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	_, err = svc.Approve(ctx, pending.ID, admin)
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	_, err = svc.Transition(ctx, pending.ID, Status("done"), tech)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	stored, _ := repo.Get(ctx, pending.ID)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, notifier.all())
}

func TestService_Cancel(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	pending := seedTicket(repo, StatusPending)
	_, err := svc.Cancel(ctx, pending.ID, tech, "bad")
	assert.True(t, errors.Is(err, errs.ErrValidation), "reason shorter than 5 chars")

	_, err = svc.Cancel(ctx, pending.ID, otherTech, "")
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	ticket, err := svc.Cancel(ctx, pending.ID, tech, "device replaced")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, ticket.Status)
	require.NotNil(t, ticket.CancelReason)
	assert.Equal(t, "device replaced", *ticket.CancelReason)

	inProgress := seedTicket(repo, StatusInProgress)
	ticket, err = svc.Cancel(ctx, inProgress.ID, admin, "")
	require.NoError(t, err)
	assert.Nil(t, ticket.CancelReason)

	completed := seedTicket(repo, StatusCompleted)
	_, err = svc.Cancel(ctx, completed.ID, admin, "")
	assert.True(t, errors.Is(err, errs.ErrInvalidTransition))

	assert.Len(t, notifier.all(), 2)
}

func TestService_ConcurrentChangeIsConflict(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	pending := seedTicket(repo, StatusPending)
	repo.raced = StatusCancelled

	_, err := svc.Transition(context.Background(), pending.ID, StatusInProgress, tech)
	assert.True(t, errors.Is(err, errs.ErrConflict))
	assert.Empty(t, notifier.all())
}

func TestService_Update(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	pending := seedTicket(repo, StatusPending)
	ticket, err := svc.Update(ctx, pending.ID, tech, validator.TicketFields{
		DeviceID:    strPtr("dev-2"),
		Priority:    strPtr("high"),
		Description: strPtr("fan replaced"),
	})
	require.NoError(t, err)
	assert.Equal(t, "dev-2", ticket.DeviceID)
	assert.Equal(t, PriorityHigh, ticket.Priority)

	inProgress := seedTicket(repo, StatusInProgress)
	ticket, err = svc.Update(ctx, inProgress.ID, admin, validator.TicketFields{
		DeviceID:    strPtr("dev-3"),
		Description: strPtr("waiting for parts"),
	})
	require.NoError(t, err)
	assert.Equal(t, "dev-1", ticket.DeviceID, "device is dropped while in progress")
	assert.Equal(t, "waiting for parts", ticket.Description)

	completed := seedTicket(repo, StatusCompleted)
	ticket, err = svc.Update(ctx, completed.ID, admin, validator.TicketFields{Description: strPtr("late note")})
	require.NoError(t, err)
	assert.Equal(t, "noisy fan", ticket.Description, "completed tickets accept no fields")

	approved := seedTicket(repo, StatusApproved)
	_, err = svc.Update(ctx, approved.ID, admin, validator.TicketFields{Description: strPtr("late note")})
	assert.True(t, errors.Is(err, errs.ErrConflict))

	_, err = svc.Update(ctx, pending.ID, otherTech, validator.TicketFields{Description: strPtr("x")})
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	_, err = svc.Update(ctx, pending.ID, admin, validator.TicketFields{Status: strPtr("completed")})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	assert.Len(t, notifier.all(), 2)
}

func TestService_UpdateDropsFieldsBeforeValidating(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		fields validator.TicketFields
	}{
		{"past date", validator.TicketFields{Date: strPtr("2001-01-01"), Description: strPtr("x")}},
		{"future date", validator.TicketFields{Date: strPtr("2099-05-01"), Description: strPtr("x")}},
		{"unknown priority", validator.TicketFields{Priority: strPtr("urgent"), Description: strPtr("x")}},
		{"valid priority", validator.TicketFields{Priority: strPtr("high"), Description: strPtr("x")}},
		{"blank device", validator.TicketFields{DeviceID: strPtr(""), Description: strPtr("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inProgress := seedTicket(repo, StatusInProgress)

			ticket, err := svc.Update(ctx, inProgress.ID, tech, tc.fields)
			require.NoError(t, err)
			assert.Equal(t, "x", ticket.Description)
			assert.Equal(t, inProgress.Date, ticket.Date)
			assert.Equal(t, PriorityMedium, ticket.Priority)
			assert.Equal(t, "dev-1", ticket.DeviceID)

			stored, err := repo.Get(ctx, inProgress.ID)
			require.NoError(t, err)
			assert.Equal(t, "x", stored.Description)
			assert.Equal(t, PriorityMedium, stored.Priority)
		})
	}
	assert.Len(t, notifier.all(), len(cases))

	// completed tickets drop everything, so bad values never reach validation
	completed := seedTicket(repo, StatusCompleted)
	ticket, err := svc.Update(ctx, completed.ID, admin, validator.TicketFields{
		Date:     strPtr("2001-01-01"),
		Priority: strPtr("urgent"),
	})
	require.NoError(t, err)
	assert.Equal(t, completed.Date, ticket.Date)
	assert.Len(t, notifier.all(), len(cases))

	// pending tickets keep every field, so they are still validated
	pending := seedTicket(repo, StatusPending)
	_, err = svc.Update(ctx, pending.ID, tech, validator.TicketFields{Date: strPtr("2001-01-01")})
	assert.True(t, errors.Is(err, errs.ErrValidation))
	_, err = svc.Update(ctx, pending.ID, tech, validator.TicketFields{Priority: strPtr("urgent")})
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestService_Delete(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	ctx := context.Background()

	pending := seedTicket(repo, StatusPending)
	assert.True(t, errors.Is(svc.Delete(ctx, pending.ID, tech), errs.ErrForbidden))
	require.NoError(t, svc.Delete(ctx, pending.ID, admin))
	_, err := repo.Get(ctx, pending.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	cancelled := seedTicket(repo, StatusCancelled)
	require.NoError(t, svc.Delete(ctx, cancelled.ID, admin))

	inProgress := seedTicket(repo, StatusInProgress)
	assert.True(t, errors.Is(svc.Delete(ctx, inProgress.ID, admin), errs.ErrConflict))

	assert.True(t, errors.Is(svc.Delete(ctx, uuid.New(), admin), errs.ErrNotFound))
	assert.Len(t, notifier.all(), 2)
}

func TestService_NotifierPanicDoesNotFailTransition(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, panickingNotifier{}, zap.NewNop())
	pending := seedTicket(repo, StatusPending)

	ticket, err := svc.Transition(context.Background(), pending.ID, StatusInProgress, tech)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, ticket.Status)

	created, err := svc.Create(context.Background(), tech, validator.TicketFields{
		Date:          strPtr("2099-05-01"),
		ResponsibleID: strPtr("tech-1"),
		DeviceID:      strPtr("dev-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.Status)
}
