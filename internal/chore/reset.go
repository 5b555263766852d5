package chore

import (
	"time"

	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

// actorSystem is recorded as the actor of transitions the engine makes on
// its own, such as auto-approval at a reset boundary.
const actorSystem = "system"

// afterApproval handles the resets an approval triggers directly. It only
// runs once the instance as a whole is approved, so a SharedAll chore waits
// for its last participant.
func (e *Engine) afterApproval(def *model.ChoreDefinition, inst *model.ChoreInstance, late bool, tx *txn) {
	if inst.Aggregate() != model.StateApproved {
		return
	}

	switch {
	case late && def.OverdueHandling == model.OverdueClearImmediateOnLate:
		// Schedule from the approval itself so the missed occurrence does
		// not push every later one back.
		e.resetProgress(inst, tx)
		e.advanceDue(def, inst, tx.now, tx.now)
		e.startPeriod(inst, tx.now)
	case def.ResetType == model.ResetUponCompletion:
		e.resetProgress(inst, tx)
		e.advanceDue(def, inst, e.anchorFor(def, inst, tx.now, &tx.now), tx.now)
		e.startPeriod(inst, tx.now)
	case def.ResetType.Multi():
		// Due date and period counter move at the boundary.
		e.resetProgress(inst, tx)
	}
}

// applyBoundary runs the scheduled reset for an instance if a boundary has
// passed since the last one. A blocked reset leaves the boundary
// unconsumed so a later tick can retry it.
func (e *Engine) applyBoundary(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) {
	boundary, ok := boundaryFor(def, inst, tx.now)
	if !ok {
		return
	}

	missed := inst.DueDate != nil && tx.now.After(*inst.DueDate)
	if reason := blockedBy(def, inst, missed); reason != "" {
		e.logger.Debug("reset blocked", "chore", inst.Chore, "instance", inst.Key().String(), "reason", reason)
		return
	}

	completed := lastCompletion(inst)
	lateAward := false
	if def.PendingClaimAction == model.PendingClaimAutoApprove {
		for _, pid := range inst.Participants() {
			p := inst.Progress[pid]
			if !p.State.IsClaimed() {
				continue
			}
			claimedAt := p.LastClaimed
			if e.award(def, inst, pid, actorSystem, nil, tx) {
				lateAward = true
			}
			// The work was done when it was claimed, not when the
			// boundary approved it.
			if claimedAt == nil {
				claimedAt = timePtr(tx.now)
			}
			completed = latest(completed, claimedAt)
		}
	}

	advance := missed || inst.ApprovalsInPeriod > 0
	e.resetProgress(inst, tx)
	if advance {
		anchor := e.anchorFor(def, inst, tx.now, completed)
		if lateAward && def.OverdueHandling == model.OverdueClearImmediateOnLate {
			anchor = tx.now
		}
		e.advanceDue(def, inst, anchor, tx.now)
	}
	e.startPeriod(inst, boundary)
	inst.LastResetBoundary = &boundary
	tx.dirty = true
}

// boundaryFor reports the reset boundary that is due for inst, if any.
// Midnight types use local midnight; the others use the due date.
func boundaryFor(def *model.ChoreDefinition, inst *model.ChoreInstance, now time.Time) (time.Time, bool) {
	if def.ResetType.AtMidnight() {
		b := startOfDay(now)
		if inst.LastResetBoundary == nil || inst.LastResetBoundary.Before(b) {
			return b, true
		}
		return time.Time{}, false
	}

	if inst.DueDate == nil || !now.After(*inst.DueDate) {
		return time.Time{}, false
	}
	b := *inst.DueDate
	if inst.LastResetBoundary != nil && !inst.LastResetBoundary.Before(b) {
		return time.Time{}, false
	}
	return b, true
}

// blockedBy reports why the boundary cannot reset inst yet, or "" if it
// can. Claims that AutoApprove will settle never block.
func blockedBy(def *model.ChoreDefinition, inst *model.ChoreInstance, missed bool) string {
	if def.PendingClaimAction == model.PendingClaimAutoApprove && inst.Criteria == model.SharedFirst && inst.ClaimedBy != "" {
		// Approving the claimant completes the chore for everyone.
		return ""
	}
	for _, p := range inst.Progress {
		if p.State.IsClaimed() {
			switch def.PendingClaimAction {
			case model.PendingClaimHold:
				return "claim held for approval"
			case model.PendingClaimAutoApprove:
				continue
			}
		}
		if !def.OverdueHandling.BlocksReset() {
			continue
		}
		switch p.State {
		case model.StateOverdue, model.StateClaimedOverdue:
			return "overdue"
		case model.StatePending, model.StateClaimed:
			if missed && !periodSatisfied(inst) {
				return "overdue"
			}
		}
	}
	return ""
}

// periodSatisfied reports whether a Multi instance was completed and
// returned to pending within the current period. Its due date stays put
// until the boundary, but the occurrence is no longer missed.
func periodSatisfied(inst *model.ChoreInstance) bool {
	if inst.ApprovalsInPeriod == 0 {
		return false
	}
	for _, p := range inst.Progress {
		if p.State == model.StateApproved {
			return false
		}
	}
	return true
}

// lastCompletion returns the latest approval in the current period, or nil
// if nobody has completed the chore since the period started.
func lastCompletion(inst *model.ChoreInstance) *time.Time {
	if inst.ApprovalsInPeriod == 0 {
		return nil
	}
	var last *time.Time
	for _, p := range inst.Progress {
		if p.LastApproved == nil {
			continue
		}
		if inst.PeriodStart != nil && p.LastApproved.Before(*inst.PeriodStart) {
			continue
		}
		last = latest(last, p.LastApproved)
	}
	return last
}

func latest(a, b *time.Time) *time.Time {
	if a == nil || (b != nil && b.After(*a)) {
		return b
	}
	return a
}

// resetProgress returns every participant to pending, discarding claims.
// Stats are kept. One ChoreReset event is emitted per participant whose
// state changed.
func (e *Engine) resetProgress(inst *model.ChoreInstance, tx *txn) {
	var changed []string
	for _, pid := range inst.Participants() {
		p := inst.Progress[pid]
		if p.State != model.StatePending {
			p.State = model.StatePending
			changed = append(changed, pid)
		}
	}
	inst.ClaimedBy = ""
	tx.dirty = true

	for _, pid := range changed {
		tx.emit(model.Event{
			Type:        model.EventReset,
			Chore:       inst.Chore,
			Participant: pid,
			Actor:       actorSystem,
			State:       model.StatePending,
			DueDate:     inst.DueDate,
		})
	}
}

func (e *Engine) startPeriod(inst *model.ChoreInstance, at time.Time) {
	inst.PeriodStart = &at
	inst.ApprovalsInPeriod = 0
}

// anchorFor picks the time the next occurrence is measured from.
// completedAt is nil when no completion triggered the advance.
func (e *Engine) anchorFor(def *model.ChoreDefinition, inst *model.ChoreInstance, now time.Time, completedAt *time.Time) time.Time {
	switch {
	case completedAt != nil && def.Recurrence.AnchorsOnCompletion():
		return *completedAt
	case inst.DueDate != nil:
		return *inst.DueDate
	}
	return now
}

// advanceDue moves the due date to the first occurrence after anchor that
// is later than both now and the current due date. Non-recurring chores
// lose their due date; a new one must be set by hand.
func (e *Engine) advanceDue(def *model.ChoreDefinition, inst *model.ChoreInstance, anchor, now time.Time) {
	if def.Recurrence.IsNone() {
		inst.DueDate = nil
		return
	}

	floor := now
	if inst.DueDate != nil && inst.DueDate.After(floor) {
		floor = *inst.DueDate
	}
	next, err := recurrence.NextDueAfter(def.Recurrence, anchor, floor, e.daysFor(def, inst))
	if err != nil {
		e.logger.Warn("advance due date", "chore", inst.Chore, "instance", inst.Key().String(), "error", err)
		return
	}
	if next.IsZero() {
		return
	}
	inst.DueDate = &next
}
