package chore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

func TestDefineRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ChoreDefinition)
	}{
		{"missing name", func(d *model.ChoreDefinition) { d.Name = "  " }},
		{"slash in name", func(d *model.ChoreDefinition) { d.Name = "dishes/alice" }},
		{"negative reward", func(d *model.ChoreDefinition) { d.Reward = -1 }},
		{"empty applicable days", func(d *model.ChoreDefinition) { d.ApplicableDays = 0 }},
		{"daily multi with midnight reset", func(d *model.ChoreDefinition) {
			d.Recurrence = recurrence.Spec{Freq: recurrence.DailyMulti, Times: []recurrence.TimeOfDay{{Hour: 8}, {Hour: 17}}}
			d.ResetType = model.ResetAtMidnightMulti
		}},
		{"custom without unit", func(d *model.ChoreDefinition) {
			d.Recurrence = recurrence.Spec{Freq: recurrence.Custom, Interval: 2}
		}},
		{"unknown reset type", func(d *model.ChoreDefinition) { d.ResetType = "weekly" }},
		{"no assignees", func(d *model.ChoreDefinition) { d.Assignees = nil }},
		{"duplicate assignee", func(d *model.ChoreDefinition) {
			d.Assignees = append(d.Assignees, model.Assignment{ParticipantID: "alice"})
		}},
		{"empty override days", func(d *model.ChoreDefinition) {
			var none recurrence.Weekdays
			d.Assignees[0].ApplicableDays = &none
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			def := daily("dishes", model.Independent, "alice")
			tt.mutate(&def)

			_, err := h.engine.Define(h.ctx, def)
			requireCode(t, err, chore.CodeConfiguration)
			assert.True(t, errors.Is(err, chore.ErrConfiguration))

			defs, err := h.engine.Definitions(h.ctx)
			require.NoError(t, err)
			assert.Empty(t, defs)
		})
	}
}

func TestDefineAcceptsDailyMultiWithCompletionReset(t *testing.T) {
	h := newHarness(t)
	def := daily("meds", model.Independent, "alice")
	def.Recurrence = recurrence.Spec{Freq: recurrence.DailyMulti, Times: []recurrence.TimeOfDay{{Hour: 8}, {Hour: 20}}}
	def.ResetType = model.ResetUponCompletion
	h.define(def)

	v := h.view("meds", "alice")
	assert.Equal(t, day(5, 20, 0), *v.DueDate)

	v = h.approve("meds", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(6, 8, 0), *v.DueDate)
}

func TestDefineUnknownParticipant(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Define(h.ctx, daily("dishes", model.Independent, "alice", "zed"))
	requireCode(t, err, chore.CodeNotFound)
}

func TestDefineAppliesDefaults(t *testing.T) {
	h := newHarness(t)
	def, err := h.engine.Define(h.ctx, model.ChoreDefinition{
		Name:           " dishes ",
		ApplicableDays: recurrence.AllDays,
		Assignees:      []model.Assignment{{ParticipantID: "alice"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "dishes", def.Name)
	assert.Equal(t, model.Independent, def.CompletionCriteria)
	assert.Equal(t, model.ResetAtMidnightOnce, def.ResetType)
	assert.Equal(t, model.PendingClaimClear, def.PendingClaimAction)
	assert.Equal(t, model.OverdueUntilComplete, def.OverdueHandling)
	assert.Nil(t, h.view("dishes", "alice").DueDate)
}

func TestRedefineReconcilesInstances(t *testing.T) {
	h := newHarness(t)
	def := daily("dishes", model.Independent, "alice", "bob")
	h.define(def)
	h.approve("dishes", "alice")

	def.Assignees = []model.Assignment{{ParticipantID: "alice"}, {ParticipantID: "carol"}}
	def.Reward = 5
	h.define(def)

	assert.Equal(t, model.StateApproved, h.view("dishes", "alice").State)
	assert.Equal(t, model.StatePending, h.view("dishes", "carol").State)
	_, err := h.engine.ViewOf(h.ctx, "dishes", "bob")
	requireCode(t, err, chore.CodeNotFound)

	views, err := h.engine.Instances(h.ctx, "dishes")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "alice", views[0].Participant)
	assert.Equal(t, "carol", views[1].Participant)
}

func TestRedefineChangingCriteriaStartsFresh(t *testing.T) {
	h := newHarness(t)
	def := daily("dishes", model.Independent, "alice", "bob")
	h.define(def)
	h.approve("dishes", "alice")

	def.CompletionCriteria = model.SharedAll
	h.define(def)

	v := h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, model.StatePending, v.Aggregate)
	insts, err := h.store.ListInstances(h.ctx, "dishes")
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Empty(t, insts[0].Participant)
}

func TestOverrideApplicableDays(t *testing.T) {
	h := newHarness(t)
	weekends := recurrence.DaysOf(6, 0)
	def := daily("dishes", model.Independent, "alice", "bob")
	def.Assignees[1].ApplicableDays = &weekends
	h.define(def)

	assert.Equal(t, day(6, 9, 0), *h.view("dishes", "alice").DueDate)
	// Monday start: bob's first applicable day is Saturday the 10th.
	assert.Equal(t, day(10, 9, 0), *h.view("dishes", "bob").DueDate)
}

func TestRemoveCascades(t *testing.T) {
	h := newHarness(t)
	h.define(daily("dishes", model.Independent, "alice", "bob"))

	require.NoError(t, h.engine.Remove(h.ctx, "dishes"))
	_, err := h.engine.Definition(h.ctx, "dishes")
	requireCode(t, err, chore.CodeNotFound)
	insts, err := h.store.ListInstances(h.ctx, "dishes")
	require.NoError(t, err)
	assert.Empty(t, insts)

	requireCode(t, h.engine.Remove(h.ctx, "dishes"), chore.CodeNotFound)
}

func TestRemoveParticipant(t *testing.T) {
	h := newHarness(t)
	h.define(daily("dishes", model.Independent, "alice", "bob"))
	h.define(daily("trash", model.SharedFirst, "alice"))

	require.NoError(t, h.engine.RemoveParticipant(h.ctx, "alice"))

	def, err := h.engine.Definition(h.ctx, "dishes")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, def.ParticipantIDs())
	_, err = h.engine.Definition(h.ctx, "trash")
	requireCode(t, err, chore.CodeNotFound)
}
