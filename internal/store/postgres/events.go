package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

// recordChange writes the outbox row and the audit entry for one ticket change.
func recordChange(ctx context.Context, tx pgx.Tx, ticket models.Ticket, eventType string, at time.Time) error {
	payload, err := json.Marshal(store.NewEventPayload(ticket))
	if err != nil {
		return err
	}
	// Postgres keeps microseconds; hash what will be stored.
	at = at.UTC().Truncate(time.Microsecond)

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, location_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ulid.Make().String(), ticket.LocationID, eventType, payload, at)
	if err != nil {
		return err
	}
	return insertTicketEvent(ctx, tx, ticket.TicketID, eventType, payload, at)
}

func insertTicketEvent(ctx context.Context, tx pgx.Tx, ticketID, eventType string, payload []byte, createdAt time.Time) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticketID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_seq, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq DESC
		LIMIT 1
		FOR UPDATE
	`, ticketID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var last *store.TicketEvent
	if lastSeq > 0 {
		last = &store.TicketEvent{TicketSeq: lastSeq, Hash: prevHash.String}
	}
	event := store.NextTicketEvent(last, ticketID, eventType, payload, createdAt)

	_, err := tx.Exec(ctx, `
		INSERT INTO ticket_events (ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.TicketID, event.TicketSeq, event.Type, []byte(event.Payload), event.CreatedAt, event.PrevHash, event.Hash)
	return err
}

// ListOutboxEvents returns events strictly after the offset in
// (created_at, event_id) order.
func (s *Store) ListOutboxEvents(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT event_id, location_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, after.LastEventTime, after.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.LocationID, &event.Type, &payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID string) ([]store.TicketEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.TicketEvent
	for rows.Next() {
		var event store.TicketEvent
		var payload []byte
		if err := rows.Scan(&event.TicketID, &event.TicketSeq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
