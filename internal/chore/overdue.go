package chore

import "github.com/dukerupert/choreflow/internal/model"

// checkOverdue marks pending and claimed participants overdue once the due
// date has passed. Already-overdue participants are left alone, so each
// missed occurrence emits ChoreOverdue once.
func (e *Engine) checkOverdue(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) {
	if def.OverdueHandling == model.OverdueNever || inst.DueDate == nil || !tx.now.After(*inst.DueDate) {
		return
	}
	if periodSatisfied(inst) {
		return
	}

	for _, pid := range inst.Participants() {
		p := inst.Progress[pid]
		switch p.State {
		case model.StatePending:
			p.State = model.StateOverdue
		case model.StateClaimed:
			p.State = model.StateClaimedOverdue
		default:
			continue
		}
		p.Stats.Overdues++
		inst.LastOverdue = timePtr(tx.now)
		tx.emit(model.Event{
			Type:        model.EventOverdue,
			Chore:       inst.Chore,
			Participant: pid,
			Actor:       actorSystem,
			State:       p.State,
			DueDate:     inst.DueDate,
		})
	}
}
