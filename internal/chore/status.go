package chore

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/choreflow/internal/model"
)

// View is one participant's projection of an instance.
type View struct {
	Chore       string                   `json:"chore"`
	Participant string                   `json:"participant_id"`
	Criteria    model.CompletionCriteria `json:"completion_criteria"`
	State       model.State              `json:"state"`
	Aggregate   model.State              `json:"aggregate_state"`
	DueDate     *time.Time               `json:"due_date,omitempty"`
	ClaimedBy   string                   `json:"claimed_by,omitempty"`
	CompletedBy []string                 `json:"completed_by,omitempty"`
	Stats       model.Stats              `json:"stats"`
}

func viewOf(inst *model.ChoreInstance, participantID string) View {
	v := View{
		Chore:       inst.Chore,
		Participant: participantID,
		Criteria:    inst.Criteria,
		State:       inst.ViewFor(participantID),
		Aggregate:   inst.Aggregate(),
		DueDate:     inst.DueDate,
		ClaimedBy:   inst.ClaimedBy,
	}
	if inst.Criteria == model.SharedAll {
		v.CompletedBy = inst.CompletedBy()
	}
	if p, ok := inst.Progress[participantID]; ok {
		v.Stats = p.Stats
	}
	return v
}

func viewsOf(inst *model.ChoreInstance) []View {
	var views []View
	for _, pid := range inst.Participants() {
		views = append(views, viewOf(inst, pid))
	}
	return views
}

// Instances returns every participant's view of a chore.
func (e *Engine) Instances(ctx context.Context, chore string) ([]View, error) {
	def, err := e.Definition(ctx, chore)
	if err != nil {
		return nil, err
	}
	insts, err := e.store.ListInstances(ctx, def.Name)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	views := []View{}
	for i := range insts {
		views = append(views, viewsOf(&insts[i])...)
	}
	return views, nil
}

// ViewOf returns one participant's view of a chore.
func (e *Engine) ViewOf(ctx context.Context, chore, participantID string) (View, error) {
	def, err := e.Definition(ctx, chore)
	if err != nil {
		return View{}, err
	}
	if !def.IsAssigned(participantID) {
		return View{}, newError(CodeNotFound, "view", chore, participantID, "participant not assigned")
	}
	inst, err := e.store.GetInstance(ctx, model.KeyFor(def.Name, def.CompletionCriteria, participantID))
	if err != nil {
		return View{}, fmt.Errorf("get instance: %w", err)
	}
	if inst == nil {
		return View{}, newError(CodeNotFound, "view", chore, participantID, "no instance")
	}
	return viewOf(inst, participantID), nil
}
