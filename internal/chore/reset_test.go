package chore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

func TestMidnightResetReturnsApprovedToPending(t *testing.T) {
	h := newHarness(t)
	h.define(daily("dishes", model.Independent, "alice"))
	h.approve("dishes", "alice")

	h.at(day(5, 23, 0))
	h.tick()
	assert.Equal(t, model.StateApproved, h.view("dishes", "alice").State)

	h.at(day(6, 0, 30))
	h.tick()
	v := h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(7, 9, 0), *v.DueDate)
	assert.Len(t, h.events.ofType(model.EventReset), 1)

	// Once per boundary.
	h.at(day(6, 0, 45))
	h.tick()
	assert.Len(t, h.events.ofType(model.EventReset), 1)
}

func TestClearDiscardsPendingClaim(t *testing.T) {
	h := newHarness(t)
	h.define(daily("dishes", model.Independent, "alice"))

	h.at(day(5, 22, 0))
	h.claim("dishes", "alice")

	h.at(day(6, 0, 30))
	h.tick()
	v := h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, 0, v.Stats.Approvals)
	assert.Empty(t, h.events.ofType(model.EventApproved))
	assert.Len(t, h.events.ofType(model.EventReset), 1)
}

func TestHoldKeepsClaimUntilDecided(t *testing.T) {
	h := newHarness(t)
	def := daily("dishes", model.Independent, "alice")
	def.PendingClaimAction = model.PendingClaimHold
	h.define(def)

	h.claim("dishes", "alice")
	h.at(day(6, 0, 30))
	h.tick()
	assert.Equal(t, model.StateClaimed, h.view("dishes", "alice").State)

	h.at(day(6, 8, 0))
	h.approve("dishes", "alice")
	h.tick()
	v := h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(7, 9, 0), *v.DueDate)
}

func TestAutoApproveAtBoundary(t *testing.T) {
	h := newHarness(t)
	def := daily("dishes", model.Independent, "alice")
	def.Reward = 4
	def.PendingClaimAction = model.PendingClaimAutoApprove
	h.define(def)

	h.claim("dishes", "alice")
	h.at(day(6, 0, 30))
	h.tick()

	approved := h.events.ofType(model.EventApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, 4.0, approved[0].Amount)
	assert.Equal(t, "system", approved[0].Actor)

	v := h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, 1, v.Stats.Approvals)
	assert.Equal(t, day(7, 9, 0), *v.DueDate)
}

func TestUntilCompleteBlocksReset(t *testing.T) {
	h := newHarness(t)
	h.define(daily("dishes", model.Independent, "alice"))

	h.at(day(6, 10, 0))
	h.tick()
	v := h.view("dishes", "alice")
	assert.Equal(t, model.StateOverdue, v.State)
	assert.Equal(t, 1, v.Stats.Overdues)
	assert.Len(t, h.events.ofType(model.EventOverdue), 1)

	h.at(day(7, 10, 0))
	h.tick()
	v = h.view("dishes", "alice")
	assert.Equal(t, model.StateOverdue, v.State)
	assert.Equal(t, day(6, 9, 0), *v.DueDate)
	assert.Len(t, h.events.ofType(model.EventOverdue), 1)

	v = h.claim("dishes", "alice")
	assert.Equal(t, model.StateClaimedOverdue, v.State)
	v = h.approve("dishes", "alice")
	assert.Equal(t, model.StateApproved, v.State)
	approved := h.events.ofType(model.EventApproved)
	require.Len(t, approved, 1)
	assert.True(t, approved[0].Late)

	h.tick()
	v = h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(8, 9, 0), *v.DueDate)
}

func TestClearAtResetDiscardsMissedOccurrence(t *testing.T) {
	h := newHarness(t)
	def := daily("dishes", model.Independent, "alice")
	def.OverdueHandling = model.OverdueClearAtReset
	h.define(def)

	h.at(day(6, 0, 30))
	h.tick()
	h.at(day(6, 10, 0))
	h.tick()
	assert.Equal(t, model.StateOverdue, h.view("dishes", "alice").State)

	h.at(day(7, 0, 30))
	h.tick()
	v := h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(7, 9, 0), *v.DueDate)
}

func TestNeverSurfacesOverdue(t *testing.T) {
	h := newHarness(t)
	def := daily("dishes", model.Independent, "alice")
	def.OverdueHandling = model.OverdueNever
	h.define(def)

	h.at(day(9, 10, 0))
	h.tick()
	assert.Equal(t, model.StatePending, h.view("dishes", "alice").State)
	assert.Empty(t, h.events.ofType(model.EventOverdue))
}

func TestClearImmediateOnLateSchedulesFromApproval(t *testing.T) {
	h := newHarness(t)
	due := day(5, 18, 0)
	def := daily("lawn", model.Independent, "alice")
	def.Recurrence = recurrence.Spec{Freq: recurrence.Weekly}
	def.ResetType = model.ResetAtDueDateOnce
	def.OverdueHandling = model.OverdueClearImmediateOnLate
	def.DueDate = &due
	h.define(def)

	h.at(day(6, 10, 0))
	h.tick()
	assert.Equal(t, model.StateOverdue, h.view("lawn", "alice").State)

	// Wednesday.
	h.at(day(7, 12, 0))
	v := h.approve("lawn", "alice")
	assert.Equal(t, model.StatePending, v.State)
	require.NotNil(t, v.DueDate)
	assert.Equal(t, day(14, 12, 0), *v.DueDate)

	h.at(day(7, 12, 5))
	h.tick()
	v = h.view("lawn", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(14, 12, 0), *v.DueDate)
}

func TestUntilCompleteDefersLateApprovalToBoundary(t *testing.T) {
	h := newHarness(t)
	due := day(5, 18, 0)
	def := daily("lawn", model.Independent, "alice")
	def.Recurrence = recurrence.Spec{Freq: recurrence.Weekly}
	def.ResetType = model.ResetAtDueDateOnce
	def.DueDate = &due
	h.define(def)

	h.at(day(6, 10, 0))
	h.tick()
	h.at(day(7, 12, 0))
	v := h.approve("lawn", "alice")
	assert.Equal(t, model.StateApproved, v.State)
	assert.Equal(t, due, *v.DueDate)

	h.tick()
	v = h.view("lawn", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(12, 18, 0), *v.DueDate)
}

func TestUponCompletionAnchorsOnCompletion(t *testing.T) {
	h := newHarness(t)
	due := day(5, 18, 0)
	def := daily("filter", model.Independent, "alice")
	def.Recurrence = recurrence.Spec{Freq: recurrence.Custom, Interval: 3, Unit: recurrence.Days, Anchor: recurrence.CompletionTime}
	def.ResetType = model.ResetUponCompletion
	def.DueDate = &due
	h.define(def)

	h.at(day(6, 10, 0))
	h.tick()
	assert.Equal(t, model.StateOverdue, h.view("filter", "alice").State)

	// Two days late.
	h.at(day(7, 10, 0))
	v := h.approve("filter", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(10, 10, 0), *v.DueDate)
	assert.Equal(t, 1, v.Stats.Approvals)
}

func TestMidnightResetAnchorsOnCompletion(t *testing.T) {
	h := newHarness(t)
	due := day(5, 18, 0)
	def := daily("filter", model.Independent, "alice")
	def.Recurrence = recurrence.Spec{Freq: recurrence.Custom, Interval: 3, Unit: recurrence.Days, Anchor: recurrence.CompletionTime}
	def.DueDate = &due
	h.define(def)

	h.at(day(6, 10, 0))
	h.tick()
	assert.Equal(t, model.StateOverdue, h.view("filter", "alice").State)

	// Two days late, then the next midnight.
	h.at(day(7, 10, 0))
	v := h.approve("filter", "alice")
	assert.Equal(t, model.StateApproved, v.State)

	h.at(day(8, 0, 30))
	h.tick()
	v = h.view("filter", "alice")
	assert.Equal(t, model.StatePending, v.State)
	require.NotNil(t, v.DueDate)
	assert.Equal(t, day(10, 10, 0), *v.DueDate)
}

func TestAutoApproveSettlesOverdueClaim(t *testing.T) {
	h := newHarness(t)
	def := daily("dishes", model.Independent, "alice")
	def.PendingClaimAction = model.PendingClaimAutoApprove
	h.define(def)

	h.at(day(6, 10, 0))
	h.tick()
	assert.Equal(t, model.StateOverdue, h.view("dishes", "alice").State)

	h.at(day(6, 20, 0))
	assert.Equal(t, model.StateClaimedOverdue, h.claim("dishes", "alice").State)

	h.at(day(7, 0, 30))
	h.tick()

	approved := h.events.ofType(model.EventApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, "system", approved[0].Actor)
	assert.True(t, approved[0].Late)

	v := h.view("dishes", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, 1, v.Stats.Approvals)
	assert.Equal(t, day(7, 9, 0), *v.DueDate)

	// Later boundaries find nothing left to settle.
	h.at(day(8, 0, 30))
	h.tick()
	assert.Len(t, h.events.ofType(model.EventApproved), 1)
}

func TestAutoApproveSettlesSharedFirstOverdueClaim(t *testing.T) {
	h := newHarness(t)
	def := daily("trash", model.SharedFirst, "alice", "bob")
	def.PendingClaimAction = model.PendingClaimAutoApprove
	h.define(def)

	h.at(day(6, 10, 0))
	h.tick()
	h.at(day(6, 20, 0))
	h.claim("trash", "alice")

	h.at(day(7, 0, 30))
	h.tick()

	approved := h.events.ofType(model.EventApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, "alice", approved[0].Participant)
	assert.Equal(t, model.StatePending, h.view("trash", "alice").State)
	assert.Equal(t, model.StatePending, h.view("trash", "bob").State)
}

func TestMultiAllowsRepeatedCycles(t *testing.T) {
	h := newHarness(t)
	def := daily("water", model.Independent, "alice")
	def.ResetType = model.ResetAtMidnightMulti
	h.define(def)

	v := h.approve("water", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(6, 9, 0), *v.DueDate)

	v = h.approve("water", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, 2, v.Stats.Approvals)
	assert.Len(t, h.events.ofType(model.EventApproved), 2)
	assert.Len(t, h.events.ofType(model.EventReset), 2)

	h.at(day(6, 0, 30))
	h.tick()
	v = h.view("water", "alice")
	assert.Equal(t, model.StatePending, v.State)
	assert.Equal(t, day(7, 9, 0), *v.DueDate)
}

func TestSharedFirstResetRestoresEveryone(t *testing.T) {
	h := newHarness(t)
	h.define(daily("trash", model.SharedFirst, "alice", "bob"))
	h.approve("trash", "bob")
	assert.Equal(t, model.StateCompletedByOther, h.view("trash", "alice").State)

	h.at(day(6, 0, 30))
	h.tick()
	alice := h.view("trash", "alice")
	assert.Equal(t, model.StatePending, alice.State)
	assert.Empty(t, alice.ClaimedBy)
	assert.Equal(t, model.StatePending, h.view("trash", "bob").State)
	assert.Len(t, h.events.ofType(model.EventReset), 2)
}

func TestDueDateResetWithoutDueDateNeverFires(t *testing.T) {
	h := newHarness(t)
	def := daily("shelves", model.Independent, "alice")
	def.Recurrence = recurrence.Spec{}
	def.ResetType = model.ResetAtDueDateOnce
	h.define(def)

	h.approve("shelves", "alice")
	h.at(start.Add(30 * 24 * time.Hour))
	h.tick()
	v := h.view("shelves", "alice")
	assert.Equal(t, model.StateApproved, v.State)
	assert.Nil(t, v.DueDate)
}
