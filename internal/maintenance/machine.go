package maintenance

import (
	"sort"

	"github.com/septivank/iot-telemetry-hub/internal/errs"
)

// Guard rejects an actor for a transition.
type Guard func(t *Ticket, actor Actor) error

// Rule is one legal transition and the guards that protect it.
type Rule struct {
	From   Status
	To     Status
	Guards []Guard
}

type edge struct {
	from Status
	to   Status
}

var (
	staffOnly = requireRole(RoleAdmin, RoleTech)
	adminOnly = requireRole(RoleAdmin)
)

var rules = map[edge][]Guard{
	{StatusPending, StatusInProgress}:   {staffOnly, requireResponsible},
	{StatusPending, StatusCancelled}:    {staffOnly, requireAdminOrResponsible},
	{StatusInProgress, StatusCompleted}: {staffOnly, requireResponsible},
	{StatusInProgress, StatusCancelled}: {staffOnly, requireAdminOrResponsible},
	{StatusCompleted, StatusApproved}:   {adminOnly},
}

// CanTransition reports whether from -> to is in the transition table
func CanTransition(from, to Status) bool {
	_, ok := rules[edge{from, to}]
	return ok
}

// Authorize checks that the ticket may move to target and that actor is
// allowed to move it. An illegal edge is reported before any permission
// failure.
func Authorize(t *Ticket, target Status, actor Actor) error {
	guards, ok := rules[edge{t.Status, target}]
	if !ok {
		return &errs.TransitionError{From: string(t.Status), To: string(target)}
	}
	for _, guard := range guards {
		if err := guard(t, actor); err != nil {
			return err
		}
	}
	return nil
}

// Rules returns the transition table ordered by source then target status
func Rules() []Rule {
	out := make([]Rule, 0, len(rules))
	for e, guards := range rules {
		out = append(out, Rule{From: e.from, To: e.to, Guards: guards})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return statusOrder(out[i].From) < statusOrder(out[j].From)
		}
		return statusOrder(out[i].To) < statusOrder(out[j].To)
	})
	return out
}

// IsTerminal reports whether no transition leaves status
func IsTerminal(status Status) bool {
	for e := range rules {
		if e.from == status {
			return false
		}
	}
	return true
}

// Deletable reports whether a ticket in status may be deleted
func Deletable(status Status) bool {
	return status == StatusPending || status == StatusCancelled
}

func statusOrder(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	case StatusCancelled:
		return 3
	case StatusApproved:
		return 4
	default:
		return 5
	}
}

func requireRole(roles ...Role) Guard {
	return func(_ *Ticket, actor Actor) error {
		for _, r := range roles {
			if actor.Role == r {
				return nil
			}
		}
		return errs.Forbidden("role %q may not perform this transition", actor.Role)
	}
}

func requireResponsible(t *Ticket, actor Actor) error {
	if !t.IsResponsible(actor) {
		return errs.Forbidden("only the responsible technician can change this ticket")
	}
	return nil
}

func requireAdminOrResponsible(t *Ticket, actor Actor) error {
	if actor.IsAdmin() || t.IsResponsible(actor) {
		return nil
	}
	return errs.Forbidden("only an admin or the responsible technician can cancel this ticket")
}
