package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultServiceMinutes = 5

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...interface{}) pgx.Row
}

type Store struct {
	db  DB
	now func() time.Time
}

func NewStore(db DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const ticketColumns = `ticket_id, user_id, customer_email, customer_name, location_id, location_name, service, status,
	position, estimated_wait, is_first_queue, created_at, updated_at, served_at, served_by, completed_at, completed_by,
	welcome_email_sent, welcome_email_sent_at, welcome_email_error,
	thank_you_email_sent, thank_you_email_sent_at, thank_you_email_error`

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	minutes := input.ServiceMinutes
	if minutes <= 0 {
		minutes = defaultServiceMinutes
	}

	if err = lockLocation(ctx, tx, input.LocationID); err != nil {
		return models.Ticket{}, err
	}

	var queued int
	var latest sql.NullTime
	if err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = ANY($2)), MAX(created_at)
		FROM queue_tickets
		WHERE location_id = $1
	`, input.LocationID, models.QueuedStatuses).Scan(&queued, &latest); err != nil {
		return models.Ticket{}, err
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = store.NextCreatedAt(createdAt, latest.Time)

	var prior int
	if err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM queue_tickets
		WHERE user_id = $1
	`, input.UserID).Scan(&prior); err != nil {
		return models.Ticket{}, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO queue_tickets (
			ticket_id, user_id, customer_email, customer_name, location_id, location_name, service,
			status, position, estimated_wait, is_first_queue, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		ON CONFLICT (ticket_id) DO NOTHING
		RETURNING `+ticketColumns,
		input.TicketID, input.UserID, input.CustomerEmail, input.CustomerName, input.LocationID, input.LocationName, input.Service,
		models.StatusWaiting, queued+1, queued*minutes, prior == 0, createdAt)

	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrDuplicateTicket
		}
		return models.Ticket{}, err
	}

	if err = recordChange(ctx, tx, ticket, store.EventTicketCreated, createdAt); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM queue_tickets WHERE ticket_id = $1`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListWaiting(ctx context.Context, locationID string) ([]models.Ticket, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM queue_tickets
		WHERE location_id = $1 AND status = $2
		ORDER BY created_at ASC, ticket_id ASC
	`, locationID, models.StatusWaiting)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (s *Store) CountQueued(ctx context.Context, locationID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM queue_tickets
		WHERE location_id = $1 AND status = ANY($2)
	`, locationID, models.QueuedStatuses).Scan(&count)
	return count, err
}

func (s *Store) GetServing(ctx context.Context, locationID string) (models.Ticket, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM queue_tickets
		WHERE location_id = $1 AND status = $2
	`, locationID, models.StatusServing)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) ServeTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, locationID, exists, err := loadTicketState(ctx, tx, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !exists || (input.LocationID != "" && input.LocationID != locationID) {
		err = store.ErrTicketNotFound
		return models.Ticket{}, err
	}
	if err = lockLocation(ctx, tx, locationID); err != nil {
		return models.Ticket{}, err
	}

	ticket, err := s.updateTicketStatus(ctx, tx, store.ActionServe, input.TicketID, input.ActorID, input.OccurredAt)
	if err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CallNext(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockLocation(ctx, tx, input.LocationID); err != nil {
		return models.Ticket{}, err
	}

	var ticketID string
	err = tx.QueryRow(ctx, `
		SELECT ticket_id
		FROM queue_tickets
		WHERE location_id = $1 AND status = $2
		ORDER BY created_at ASC, ticket_id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, input.LocationID, models.StatusWaiting).Scan(&ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNoWaiting
		}
		return models.Ticket{}, err
	}
	_, busy, err := findServing(ctx, tx, input.LocationID)
	if err != nil {
		return models.Ticket{}, err
	}
	if busy {
		err = store.ErrServingSlotTaken
		return models.Ticket{}, err
	}

	ticket, err := s.updateTicketStatus(ctx, tx, store.ActionServe, ticketID, input.ActorID, input.OccurredAt)
	if err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CompleteServing(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	return s.finishServing(ctx, input, store.ActionComplete)
}

func (s *Store) NoShowServing(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	return s.finishServing(ctx, input, store.ActionNoShow)
}

func (s *Store) finishServing(ctx context.Context, input store.TransitionInput, action string) (models.Ticket, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockLocation(ctx, tx, input.LocationID); err != nil {
		return models.Ticket{}, err
	}
	currentID, found, err := findServing(ctx, tx, input.LocationID)
	if err != nil {
		return models.Ticket{}, err
	}
	if input.TicketID != "" && (!found || currentID != input.TicketID) {
		_, _, exists, lookupErr := loadTicketState(ctx, tx, input.TicketID)
		if lookupErr != nil {
			err = lookupErr
			return models.Ticket{}, err
		}
		if !exists {
			err = store.ErrTicketNotFound
		} else {
			err = store.ErrInvalidState
		}
		return models.Ticket{}, err
	}
	if !found {
		err = store.ErrNoServing
		return models.Ticket{}, err
	}

	ticket, err := s.updateTicketStatus(ctx, tx, action, currentID, input.ActorID, input.OccurredAt)
	if err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CancelTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ownerID, status string
	err = tx.QueryRow(ctx, `
		SELECT user_id, status
		FROM queue_tickets
		WHERE ticket_id = $1
		FOR UPDATE
	`, input.TicketID).Scan(&ownerID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if ownerID != input.ActorID {
		err = store.ErrNotTicketOwner
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionCancel, status) {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}

	ticket, err := s.updateTicketStatus(ctx, tx, store.ActionCancel, input.TicketID, input.ActorID, input.OccurredAt)
	if err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListUserTickets(ctx context.Context, userID string, statuses []string, limit int) ([]models.Ticket, error) {
	var filter interface{}
	if len(statuses) > 0 {
		filter = statuses
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM queue_tickets
		WHERE user_id = $1 AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT NULLIF($3::int, 0)
	`, userID, filter, limit)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (s *Store) ListTicketsSince(ctx context.Context, since time.Time) ([]models.Ticket, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM queue_tickets
		WHERE created_at >= $1
		ORDER BY created_at ASC, ticket_id ASC
	`, since)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (s *Store) RecordNotification(ctx context.Context, outcome store.NotificationOutcome) error {
	sentColumn, sentAtColumn, errorColumn, ok := store.NotificationColumns(outcome.Kind)
	if !ok {
		return fmt.Errorf("unknown notification kind %q", outcome.Kind)
	}
	var sentAt interface{}
	if outcome.Err == "" {
		sentAt = outcome.SentAt
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
		UPDATE queue_tickets
		SET %s = $2, %s = $3, %s = $4
		WHERE ticket_id = $1
	`, sentColumn, sentAtColumn, errorColumn), outcome.TicketID, outcome.Err == "", sentAt, outcome.Err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrTicketNotFound
	}
	return nil
}

// updateTicketStatus applies action to a ticket inside tx. The caller holds
// the location lock. Timestamps never move backwards relative to updated_at.
func (s *Store) updateTicketStatus(ctx context.Context, tx pgx.Tx, action, ticketID, actorID string, occurredAt time.Time) (models.Ticket, error) {
	toStatus, ok := store.TargetStatus(action)
	if !ok {
		return models.Ticket{}, store.ErrInvalidState
	}
	fromStatuses := store.FromStatuses(action)
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	updateQuery := `
		UPDATE queue_tickets
		SET status = $1, updated_at = GREATEST($2::timestamptz, updated_at)`
	args := []interface{}{toStatus, occurredAt}
	argPos := 3

	switch action {
	case store.ActionServe:
		updateQuery += fmt.Sprintf(", served_at = GREATEST($2::timestamptz, updated_at), served_by = $%d", argPos)
		args = append(args, actorID)
		argPos++
	case store.ActionComplete, store.ActionNoShow:
		updateQuery += fmt.Sprintf(", completed_at = GREATEST($2::timestamptz, updated_at), completed_by = $%d", argPos)
		args = append(args, actorID)
		argPos++
	case store.ActionCancel:
		updateQuery += ", completed_at = GREATEST($2::timestamptz, updated_at)"
	}

	updateQuery += fmt.Sprintf(`
		WHERE ticket_id = $%d AND status = ANY($%d)`, argPos, argPos+1)
	args = append(args, ticketID, fromStatuses)

	if action == store.ActionServe {
		updateQuery += `
		AND NOT EXISTS (
			SELECT 1 FROM queue_tickets busy
			WHERE busy.location_id = queue_tickets.location_id AND busy.status = 'serving'
		)`
	}
	updateQuery += "\n\t\tRETURNING " + ticketColumns

	ticket, err := scanTicket(tx.QueryRow(ctx, updateQuery, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Ticket{}, store.ErrServingSlotTaken
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, err
		}
		status, _, exists, lookupErr := loadTicketState(ctx, tx, ticketID)
		if lookupErr != nil {
			return models.Ticket{}, lookupErr
		}
		if !exists {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		if action == store.ActionServe && store.ValidTransition(action, status) {
			return models.Ticket{}, store.ErrServingSlotTaken
		}
		return models.Ticket{}, store.ErrInvalidState
	}

	if err := recordChange(ctx, tx, ticket, store.EventType(action), ticket.UpdatedAt); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func lockLocation(ctx context.Context, tx pgx.Tx, locationID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "location:"+locationID)
	return err
}

func findServing(ctx context.Context, tx pgx.Tx, locationID string) (string, bool, error) {
	var ticketID string
	err := tx.QueryRow(ctx, `
		SELECT ticket_id
		FROM queue_tickets
		WHERE location_id = $1 AND status = $2
		FOR UPDATE
	`, locationID, models.StatusServing).Scan(&ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return ticketID, true, nil
}

func loadTicketState(ctx context.Context, tx pgx.Tx, ticketID string) (string, string, bool, error) {
	var status, locationID string
	err := tx.QueryRow(ctx, `
		SELECT status, location_id
		FROM queue_tickets
		WHERE ticket_id = $1
	`, ticketID).Scan(&status, &locationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	return status, locationID, true, nil
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var servedAtNull sql.NullTime
	var completedAtNull sql.NullTime
	var welcomeAtNull sql.NullTime
	var thankYouAtNull sql.NullTime
	err := row.Scan(
		&ticket.TicketID, &ticket.UserID, &ticket.CustomerEmail, &ticket.CustomerName, &ticket.LocationID,
		&ticket.LocationName, &ticket.Service, &ticket.Status, &ticket.Position, &ticket.EstimatedWait,
		&ticket.IsFirstQueue, &ticket.CreatedAt, &ticket.UpdatedAt, &servedAtNull, &ticket.ServedBy,
		&completedAtNull, &ticket.CompletedBy,
		&ticket.WelcomeQueueEmailSent, &welcomeAtNull, &ticket.WelcomeQueueEmailError,
		&ticket.ThankYouEmailSent, &thankYouAtNull, &ticket.ThankYouEmailError,
	)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.ServedAt = nullTimePtr(servedAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.WelcomeQueueEmailSentAt = nullTimePtr(welcomeAtNull)
	ticket.ThankYouEmailSentAt = nullTimePtr(thankYouAtNull)
	return ticket, nil
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	defer rows.Close()
	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
