package chore

import (
	"context"
	"time"

	"github.com/dukerupert/choreflow/internal/model"
)

// Claim marks a chore as done by participantID and waiting for approval.
// The participant may claim for themselves; approvers may claim on
// anyone's behalf.
func (e *Engine) Claim(ctx context.Context, chore, participantID, actorID string) (View, error) {
	const op = "claim"

	actor, err := e.actor(ctx, op, chore, actorID)
	if err != nil {
		return View{}, err
	}
	if actor.ID != participantID && !actor.IsApprover() {
		return View{}, newError(CodePermissionDenied, op, chore, participantID, "%s may not claim for another participant", actorID)
	}

	key, err := e.keyOf(ctx, op, chore, participantID)
	if err != nil {
		return View{}, err
	}
	inst, err := e.mutate(ctx, op, key, func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
		prog, err := progressOf(op, def, inst, participantID)
		if err != nil {
			return err
		}
		if err := checkClaimable(op, inst, participantID, prog); err != nil {
			return err
		}
		e.claim(inst, participantID, actorID, prog, tx)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return viewOf(inst, participantID), nil
}

func checkClaimable(op string, inst *model.ChoreInstance, participantID string, prog *model.Progress) error {
	switch prog.State {
	case model.StatePending, model.StateOverdue:
	case model.StateClaimed, model.StateClaimedOverdue:
		return newError(CodeInvalidTransition, op, inst.Chore, participantID, "already claimed")
	case model.StateCompletedByOther:
		return newError(CodeInvalidTransition, op, inst.Chore, participantID, "completed by %s", inst.ClaimedBy)
	default:
		return newError(CodeInvalidTransition, op, inst.Chore, participantID, "cannot claim a chore in state %s", prog.State)
	}
	if inst.Criteria == model.SharedFirst && inst.ClaimedBy != "" && inst.ClaimedBy != participantID {
		return newError(CodeInvalidTransition, op, inst.Chore, participantID, "already claimed by %s", inst.ClaimedBy)
	}
	return nil
}

func (e *Engine) claim(inst *model.ChoreInstance, participantID, actorID string, prog *model.Progress, tx *txn) {
	if prog.State == model.StateOverdue {
		prog.State = model.StateClaimedOverdue
	} else {
		prog.State = model.StateClaimed
	}
	prog.LastClaimed = timePtr(tx.now)
	prog.Stats.Claims++
	if inst.Criteria == model.SharedFirst {
		inst.ClaimedBy = participantID
	}
	tx.emit(model.Event{
		Type:        model.EventClaimed,
		Chore:       inst.Chore,
		Participant: participantID,
		Actor:       actorID,
		State:       prog.State,
		DueDate:     inst.DueDate,
	})
}

// Approve awards the chore to participantID. Approvers may approve straight
// from pending, which claims and approves in one step. amountOverride
// replaces the configured reward when set.
func (e *Engine) Approve(ctx context.Context, chore, participantID, actorID string, amountOverride *float64) (View, error) {
	const op = "approve"

	actor, err := e.actor(ctx, op, chore, actorID)
	if err != nil {
		return View{}, err
	}
	if !actor.IsApprover() {
		return View{}, newError(CodePermissionDenied, op, chore, participantID, "%s is not an approver", actorID)
	}
	if amountOverride != nil && *amountOverride < 0 {
		return View{}, newError(CodeInvalidTransition, op, chore, participantID, "amount must not be negative")
	}

	key, err := e.keyOf(ctx, op, chore, participantID)
	if err != nil {
		return View{}, err
	}
	inst, err := e.mutate(ctx, op, key, func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
		prog, err := progressOf(op, def, inst, participantID)
		if err != nil {
			return err
		}

		switch prog.State {
		case model.StateApproved, model.StateCompletedByOther:
			return newError(CodeStateConflict, op, chore, participantID, "already %s", prog.State)
		case model.StatePending, model.StateOverdue:
			if err := checkClaimable(op, inst, participantID, prog); err != nil {
				return err
			}
			e.claim(inst, participantID, actorID, prog, tx)
		}

		e.approve(def, inst, participantID, actorID, amountOverride, tx)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return viewOf(inst, participantID), nil
}

// approve moves a claimed participant to approved and runs any reset that
// completion triggers. The caller holds the instance lock.
func (e *Engine) approve(def *model.ChoreDefinition, inst *model.ChoreInstance, participantID, actorID string, amountOverride *float64, tx *txn) {
	late := e.award(def, inst, participantID, actorID, amountOverride, tx)
	e.afterApproval(def, inst, late, tx)
}

// award records the approval and emits ChoreApproved. It reports whether
// the approval came after the due date.
func (e *Engine) award(def *model.ChoreDefinition, inst *model.ChoreInstance, participantID, actorID string, amountOverride *float64, tx *txn) bool {
	prog := inst.Progress[participantID]
	late := prog.State == model.StateClaimedOverdue || (inst.DueDate != nil && tx.now.After(*inst.DueDate))

	amount := def.RewardFor(participantID)
	if amountOverride != nil {
		amount = *amountOverride
	}

	prog.State = model.StateApproved
	prog.LastApproved = timePtr(tx.now)
	prog.Stats.Approvals++
	updateStreak(&prog.Stats, tx.now)
	inst.ApprovalsInPeriod++

	if inst.Criteria == model.SharedFirst {
		inst.ClaimedBy = participantID
		for pid, other := range inst.Progress {
			if pid != participantID {
				other.State = model.StateCompletedByOther
			}
		}
	}

	tx.emit(model.Event{
		Type:        model.EventApproved,
		Chore:       inst.Chore,
		Participant: participantID,
		Actor:       actorID,
		Amount:      amount,
		State:       model.StateApproved,
		DueDate:     inst.DueDate,
		Late:        late,
	})
	return late
}

// Disapprove rejects a claim. An approver's rejection is counted; the
// claimant withdrawing their own claim is an undo and is not. For
// SharedFirst chores an approver may also reject the winner's approval,
// which reopens the chore for everyone.
func (e *Engine) Disapprove(ctx context.Context, chore, participantID, actorID string) (View, error) {
	const op = "disapprove"

	actor, err := e.actor(ctx, op, chore, actorID)
	if err != nil {
		return View{}, err
	}
	if !actor.IsApprover() && actor.ID != participantID {
		return View{}, newError(CodePermissionDenied, op, chore, participantID, "only an approver or the claimant may disapprove")
	}
	undo := !actor.IsApprover()

	key, err := e.keyOf(ctx, op, chore, participantID)
	if err != nil {
		return View{}, err
	}
	inst, err := e.mutate(ctx, op, key, func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
		prog, err := progressOf(op, def, inst, participantID)
		if err != nil {
			return err
		}

		switch {
		case prog.State.IsClaimed():
			if prog.State == model.StateClaimedOverdue {
				prog.State = model.StateOverdue
			} else {
				prog.State = model.StatePending
			}
			if inst.Criteria == model.SharedFirst {
				inst.ClaimedBy = ""
			}
		case prog.State == model.StateApproved && inst.Criteria == model.SharedFirst && !undo:
			for _, p := range inst.Progress {
				p.State = model.StatePending
			}
			inst.ClaimedBy = ""
			if inst.ApprovalsInPeriod > 0 {
				inst.ApprovalsInPeriod--
			}
		default:
			return newError(CodeInvalidTransition, op, chore, participantID, "nothing to disapprove in state %s", prog.State)
		}

		if !undo {
			prog.Stats.Disapprovals++
		}
		tx.emit(model.Event{
			Type:        model.EventDisapproved,
			Chore:       inst.Chore,
			Participant: participantID,
			Actor:       actorID,
			State:       prog.State,
			DueDate:     inst.DueDate,
			Undo:        undo,
		})
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return viewOf(inst, participantID), nil
}

func (e *Engine) keyOf(ctx context.Context, op, chore, participantID string) (model.InstanceKey, error) {
	def, err := e.store.GetDefinition(ctx, chore)
	if err != nil {
		return model.InstanceKey{}, err
	}
	if def == nil {
		return model.InstanceKey{}, newError(CodeNotFound, op, chore, participantID, "unknown chore")
	}
	return model.KeyFor(def.Name, def.CompletionCriteria, participantID), nil
}

// progressOf re-checks the assignment under the lock, since the definition
// may have changed since the key was resolved.
func progressOf(op string, def *model.ChoreDefinition, inst *model.ChoreInstance, participantID string) (*model.Progress, error) {
	if !def.IsAssigned(participantID) {
		return nil, newError(CodeNotFound, op, def.Name, participantID, "participant not assigned")
	}
	prog, ok := inst.Progress[participantID]
	if !ok {
		return nil, newError(CodeNotFound, op, def.Name, participantID, "no progress for participant")
	}
	return prog, nil
}

// updateStreak extends the streak when at falls on the calendar day after
// the previous completion and restarts it after any larger gap.
func updateStreak(st *model.Stats, at time.Time) {
	day := startOfDay(at)
	switch {
	case st.LastStreakDate == nil:
		st.CurrentStreak = 1
	default:
		last := startOfDay(st.LastStreakDate.In(at.Location()))
		switch {
		case last.Equal(day):
			if st.CurrentStreak == 0 {
				st.CurrentStreak = 1
			}
		case last.AddDate(0, 0, 1).Equal(day):
			st.CurrentStreak++
		default:
			st.CurrentStreak = 1
		}
	}
	st.LastStreakDate = &day
	if st.CurrentStreak > st.HighestStreak {
		st.HighestStreak = st.CurrentStreak
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
