package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/choreflow/internal/model"
)

// EventStore keeps the history of published chore events. Publish makes
// it usable as a chore.EventSink.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// EventFilter narrows List. Zero fields match everything.
type EventFilter struct {
	Chore       string
	Participant string
	Type        model.EventType
	Since       time.Time
	Limit       int
}

func (s *EventStore) Publish(ctx context.Context, e model.Event) error {
	var late, undo int
	if e.Late {
		late = 1
	}
	if e.Undo {
		undo = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chore_events (id, type, chore, participant_id, actor_id, amount, state, due_date, late, undo, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Chore, e.Participant, e.Actor, e.Amount, e.State, nullTime(e.DueDate), late, undo, e.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns matching events, newest first.
func (s *EventStore) List(ctx context.Context, f EventFilter) ([]model.Event, error) {
	var where []string
	var args []any
	if f.Chore != "" {
		where = append(where, "chore = ?")
		args = append(args, f.Chore)
	}
	if f.Participant != "" {
		where = append(where, "participant_id = ?")
		args = append(args, f.Participant)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if !f.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `SELECT id, type, chore, participant_id, actor_id, amount, state, due_date, late, undo, occurred_at FROM chore_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, rowid DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var due sql.NullTime
		var late, undo int
		err := rows.Scan(&e.ID, &e.Type, &e.Chore, &e.Participant, &e.Actor, &e.Amount, &e.State, &due, &late, &undo, &e.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.DueDate = timeFrom(due)
		e.Late = late == 1
		e.Undo = undo == 1
		events = append(events, e)
	}
	return events, rows.Err()
}

// PointBalance sums the approved amounts recorded for a participant.
func (s *EventStore) PointBalance(ctx context.Context, participantID string) (model.PointBalance, error) {
	b := model.PointBalance{ParticipantID: participantID}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM chore_events WHERE participant_id = ? AND type = ?`,
		participantID, model.EventApproved,
	).Scan(&b.Approvals, &b.TotalEarned)
	if err != nil {
		return b, fmt.Errorf("sum points: %w", err)
	}
	return b, nil
}
