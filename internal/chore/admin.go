package chore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/choreflow/internal/model"
)

// SetDueDate sets the due date of a chore's instances, or of one
// participant's instance when participantID is set. An empty timestamp
// clears the due date. Moving the due date into the future clears any
// overdue state.
func (e *Engine) SetDueDate(ctx context.Context, chore, participantID, timestamp string) ([]View, error) {
	const op = "set due date"

	var due *time.Time
	if ts := strings.TrimSpace(timestamp); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, &Error{Code: CodeConfiguration, Op: op, Chore: chore, Participant: participantID, Message: "due date must be an RFC 3339 timestamp", Err: err}
		}
		t = t.In(e.cfg.Location)
		due = &t
	}

	return e.eachInstance(ctx, op, chore, participantID, func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
		inst.DueDate = due
		tx.dirty = true
		if due == nil || !due.After(tx.now) {
			return nil
		}
		for _, pid := range inst.Participants() {
			p := inst.Progress[pid]
			switch p.State {
			case model.StateOverdue:
				p.State = model.StatePending
			case model.StateClaimedOverdue:
				p.State = model.StateClaimed
			default:
				continue
			}
			tx.emit(model.Event{Type: model.EventReset, Chore: inst.Chore, Participant: pid, State: p.State, DueDate: inst.DueDate})
		}
		return nil
	})
}

// SkipToNextOccurrence abandons the current occurrence: claims are dropped,
// every participant returns to pending and the due date moves to the next
// occurrence. No reward is given.
func (e *Engine) SkipToNextOccurrence(ctx context.Context, chore, participantID string) ([]View, error) {
	const op = "skip"

	return e.eachInstance(ctx, op, chore, participantID, func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
		if def.Recurrence.IsNone() {
			return newError(CodeInvalidTransition, op, chore, participantID, "chore does not recur")
		}
		e.advanceDue(def, inst, e.anchorFor(def, inst, tx.now, nil), tx.now)
		e.resetProgress(inst, tx)
		e.startPeriod(inst, tx.now)
		return nil
	})
}

// ResetOverdue clears overdue state and moves the due date past now. An
// empty chore name selects every chore.
func (e *Engine) ResetOverdue(ctx context.Context, chore, participantID string) ([]View, error) {
	const op = "reset overdue"

	fn := func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
		var cleared bool
		for _, pid := range inst.Participants() {
			p := inst.Progress[pid]
			switch p.State {
			case model.StateOverdue:
				p.State = model.StatePending
			case model.StateClaimedOverdue:
				p.State = model.StateClaimed
			default:
				continue
			}
			cleared = true
			tx.emit(model.Event{Type: model.EventReset, Chore: inst.Chore, Participant: pid, State: p.State})
		}
		if cleared {
			e.advanceDue(def, inst, e.anchorFor(def, inst, tx.now, nil), tx.now)
		}
		return nil
	}

	if chore != "" {
		return e.eachInstance(ctx, op, chore, participantID, fn)
	}
	if participantID != "" {
		return nil, newError(CodeNotFound, op, "", participantID, "a chore is required when selecting a participant")
	}

	defs, err := e.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: list definitions: %w", op, err)
	}
	var views []View
	for _, def := range defs {
		v, err := e.eachInstance(ctx, op, def.Name, "", fn)
		if err != nil {
			return views, err
		}
		views = append(views, v...)
	}
	return views, nil
}

// ResetAll returns every instance of every chore to pending. Due dates and
// stats are kept.
func (e *Engine) ResetAll(ctx context.Context) error {
	const op = "reset all"

	defs, err := e.store.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("%s: list definitions: %w", op, err)
	}
	for _, def := range defs {
		if _, err := e.eachInstance(ctx, op, def.Name, "", func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
			e.resetProgress(inst, tx)
			e.startPeriod(inst, tx.now)
			return nil
		}); err != nil {
			return err
		}
	}
	e.logger.Info("all chores reset", "chores", len(defs))
	return nil
}

// eachInstance runs fn under lock on every instance an operation targets
// and returns the resulting views.
func (e *Engine) eachInstance(ctx context.Context, op, chore, participantID string, fn func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error) ([]View, error) {
	def, err := e.Definition(ctx, chore)
	if err != nil {
		return nil, err
	}
	keys, err := keysFor(op, def, participantID)
	if err != nil {
		return nil, err
	}

	var views []View
	for _, key := range keys {
		inst, err := e.mutate(ctx, op, key, fn)
		if err != nil {
			return views, err
		}
		if participantID != "" {
			views = append(views, viewOf(inst, participantID))
			continue
		}
		views = append(views, viewsOf(inst)...)
	}
	return views, nil
}
