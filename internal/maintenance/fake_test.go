package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
)

type memoryRepo struct {
	mu      sync.Mutex
	tickets map[uuid.UUID]Ticket
	// raced, when set, changes the stored status right before a conditional
	// write so the write sees a stale status
	raced   Status
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tickets: make(map[uuid.UUID]Ticket)}
}

func (m *memoryRepo) put(t Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
}

func (m *memoryRepo) Insert(_ context.Context, t *Ticket) error {
	m.put(*t)
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, errs.NotFound("ticket %s not found", id)
	}
	return &t, nil
}

func (m *memoryRepo) List(_ context.Context, f ListFilter) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Ticket, 0)
	for _, t := range m.tickets {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryRepo) checkRace(id uuid.UUID, expected Status) error {
	t := m.tickets[id]
	if m.raced != "" {
		t.Status = m.raced
		m.tickets[id] = t
	}
	if t.Status != expected {
		return errs.Conflict("ticket %s is no longer %s", id, expected)
	}
	return nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, c Change) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRace(id, c.From); err != nil {
		return nil, err
	}
	t := m.tickets[id]
	t.Status = c.To
	if c.ApprovedBy != nil {
		t.ApprovedBy = c.ApprovedBy
	}
	if c.CancelReason != nil {
		t.CancelReason = c.CancelReason
	}
	t.UpdatedAt = c.At
	m.tickets[id] = t
	return &t, nil
}

func (m *memoryRepo) UpdateFields(_ context.Context, id uuid.UUID, expected Status, p Patch, at time.Time) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRace(id, expected); err != nil {
		return nil, err
	}
	t := m.tickets[id]
	p.Apply(&t)
	t.UpdatedAt = at
	m.tickets[id] = t
	return &t, nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID, expected Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkRace(id, expected); err != nil {
		return err
	}
	delete(m.tickets, id)
	return nil
}

type published struct {
	ID        string
	Type      string
	Broadcast bool
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(id, eventType string, _ any) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{ID: id, Type: eventType})
	return 1
}

func (n *recordingNotifier) Broadcast(eventType string, data any) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var id string
	if t, ok := data.(*Ticket); ok {
		id = t.ID.String()
	}
	n.events = append(n.events, published{ID: id, Type: eventType, Broadcast: true})
	return 1
}

func (n *recordingNotifier) all() []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]published(nil), n.events...)
}

type panickingNotifier struct{}

func (panickingNotifier) Publish(string, string, any) int {
	panic("socket closed")
}

func (panickingNotifier) Broadcast(string, any) int {
	panic("socket closed")
}
