package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/iot-telemetry-hub/internal/errs"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Repository persists tickets. Status changes are conditional on the status
// the caller read; a mismatch is reported as errs.ErrConflict.
type Repository interface {
	Insert(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id uuid.UUID) (*Ticket, error)
	List(ctx context.Context, f ListFilter) ([]Ticket, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, c Change) (*Ticket, error)
	UpdateFields(ctx context.Context, id uuid.UUID, expected Status, p Patch, at time.Time) (*Ticket, error)
	Delete(ctx context.Context, id uuid.UUID, expected Status) error
}

const ticketColumns = `id, date, responsible_id, device_id, status, approved_by, damage_image,
	priority, description, cancel_reason, created_at, updated_at`

// PostgresRepository stores tickets in the maintenance_tickets table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a ticket repository on db
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var (
		t            Ticket
		approvedBy   sql.NullString
		damageImage  sql.NullString
		cancelReason sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.Date, &t.ResponsibleID, &t.DeviceID, &t.Status, &approvedBy, &damageImage,
		&t.Priority, &t.Description, &cancelReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ApprovedBy = nullable(approvedBy)
	t.DamageImage = nullable(damageImage)
	t.CancelReason = nullable(cancelReason)
	return &t, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Insert writes a new ticket
func (r *PostgresRepository) Insert(ctx context.Context, t *Ticket) error {
	query := `INSERT INTO maintenance_tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Date, t.ResponsibleID, t.DeviceID, t.Status, t.ApprovedBy, t.DamageImage,
		t.Priority, t.Description, t.CancelReason, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

// Get loads one ticket
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM maintenance_tickets WHERE id = $1`

	t, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("ticket %s not found", id)
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// List returns tickets matching f, newest schedule first
func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]Ticket, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.DeviceID != "" {
		add("device_id", f.DeviceID)
	}
	if f.ResponsibleID != "" {
		add("responsible_id", f.ResponsibleID)
	}

	limit, page := normalizePage(f.Limit, f.Page)
	query := `SELECT ` + ticketColumns + ` FROM maintenance_tickets`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, (page-1)*limit)
	query += fmt.Sprintf(" ORDER BY date DESC, created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}
	return tickets, nil
}

// UpdateStatus moves a ticket from c.From to c.To. Approval and cancel
// reason are written in the same statement as the status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, c Change) (*Ticket, error) {
	query := `UPDATE maintenance_tickets
		SET status = $1,
			approved_by = COALESCE($2, approved_by),
			cancel_reason = COALESCE($3, cancel_reason),
			updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING ` + ticketColumns

	t, err := scanTicket(r.db.QueryRowContext(ctx, query, c.To, c.ApprovedBy, c.CancelReason, c.At, id, c.From))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Conflict("ticket %s is no longer %s", id, c.From)
		}
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}
	return t, nil
}

// UpdateFields writes the non-nil fields of p while the ticket is still in
// status expected
func (r *PostgresRepository) UpdateFields(ctx context.Context, id uuid.UUID, expected Status, p Patch, at time.Time) (*Ticket, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Date != nil {
		set("date", *p.Date)
	}
	if p.ResponsibleID != nil {
		set("responsible_id", *p.ResponsibleID)
	}
	if p.DeviceID != nil {
		set("device_id", *p.DeviceID)
	}
	if p.DamageImage != nil {
		set("damage_image", *p.DamageImage)
	}
	if p.Priority != nil {
		set("priority", *p.Priority)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	set("updated_at", at)

	args = append(args, id, expected)
	query := fmt.Sprintf(`UPDATE maintenance_tickets SET %s WHERE id = $%d AND status = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), ticketColumns)

	t, err := scanTicket(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Conflict("ticket %s is no longer %s", id, expected)
		}
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	return t, nil
}

// Delete removes a ticket that is still in status expected
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID, expected Status) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM maintenance_tickets WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deleted rows: %w", err)
	}
	if n == 0 {
		return errs.Conflict("ticket %s is no longer %s", id, expected)
	}
	return nil
}

func normalizePage(limit, page int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if page <= 0 {
		page = 1
	}
	return limit, page
}
