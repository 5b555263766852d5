package model

import (
	"slices"
	"time"

	"github.com/dukerupert/choreflow/internal/recurrence"
)

type CompletionCriteria string

const (
	Independent CompletionCriteria = "independent"
	SharedAll   CompletionCriteria = "shared_all"
	SharedFirst CompletionCriteria = "shared_first"
)

func (c CompletionCriteria) Valid() bool {
	return c == Independent || c == SharedAll || c == SharedFirst
}

func (c CompletionCriteria) IsShared() bool {
	return c == SharedAll || c == SharedFirst
}

type ResetType string

const (
	ResetAtMidnightOnce  ResetType = "at_midnight_once"
	ResetAtMidnightMulti ResetType = "at_midnight_multi"
	ResetAtDueDateOnce   ResetType = "at_due_date_once"
	ResetAtDueDateMulti  ResetType = "at_due_date_multi"
	ResetUponCompletion  ResetType = "upon_completion"
)

func (r ResetType) Valid() bool {
	switch r {
	case ResetAtMidnightOnce, ResetAtMidnightMulti, ResetAtDueDateOnce, ResetAtDueDateMulti, ResetUponCompletion:
		return true
	}
	return false
}

func (r ResetType) AtMidnight() bool {
	return r == ResetAtMidnightOnce || r == ResetAtMidnightMulti
}

func (r ResetType) AtDueDate() bool {
	return r == ResetAtDueDateOnce || r == ResetAtDueDateMulti
}

// Multi reports whether several approve/reset cycles may happen inside one
// boundary period.
func (r ResetType) Multi() bool {
	return r == ResetAtMidnightMulti || r == ResetAtDueDateMulti
}

type PendingClaimAction string

const (
	PendingClaimClear       PendingClaimAction = "clear"
	PendingClaimHold        PendingClaimAction = "hold"
	PendingClaimAutoApprove PendingClaimAction = "auto_approve"
)

func (a PendingClaimAction) Valid() bool {
	return a == PendingClaimClear || a == PendingClaimHold || a == PendingClaimAutoApprove
}

type OverdueHandling string

const (
	OverdueUntilComplete        OverdueHandling = "until_complete"
	OverdueNever                OverdueHandling = "never"
	OverdueClearAtReset         OverdueHandling = "clear_at_reset"
	OverdueClearImmediateOnLate OverdueHandling = "clear_immediate_on_late"
)

func (o OverdueHandling) Valid() bool {
	switch o {
	case OverdueUntilComplete, OverdueNever, OverdueClearAtReset, OverdueClearImmediateOnLate:
		return true
	}
	return false
}

// BlocksReset reports whether an overdue instance holds its slot across
// reset boundaries until it is completed.
func (o OverdueHandling) BlocksReset() bool {
	return o == OverdueUntilComplete || o == OverdueClearImmediateOnLate
}

type State string

const (
	StatePending          State = "pending"
	StateClaimed          State = "claimed"
	StateApproved         State = "approved"
	StateOverdue          State = "overdue"
	StateClaimedOverdue   State = "claimed_overdue"
	StateCompletedByOther State = "completed_by_other"

	// Aggregate-only states for SharedAll chores.
	StateClaimedInPart  State = "claimed_in_part"
	StateApprovedInPart State = "approved_in_part"
)

func (s State) IsClaimed() bool {
	return s == StateClaimed || s == StateClaimedOverdue
}

// IsOpen reports whether work is still outstanding (not yet claimed or approved).
func (s State) IsOpen() bool {
	return s == StatePending || s == StateOverdue
}

// Assignment links a participant to a chore with optional per-participant
// overrides of the definition's defaults.
type Assignment struct {
	ParticipantID  string               `json:"participant_id"`
	Reward         *float64             `json:"reward,omitempty"`
	ApplicableDays *recurrence.Weekdays `json:"applicable_days,omitempty"`
}

// ChoreDefinition is the template from which instances are derived.
type ChoreDefinition struct {
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Reward             float64             `json:"reward"`
	CompletionCriteria CompletionCriteria  `json:"completion_criteria"`
	Recurrence         recurrence.Spec     `json:"recurrence"`
	ApplicableDays     recurrence.Weekdays `json:"applicable_days"`
	ResetType          ResetType           `json:"approval_reset_type"`
	PendingClaimAction PendingClaimAction  `json:"pending_claim_action"`
	OverdueHandling    OverdueHandling     `json:"overdue_handling_type"`
	DueDate            *time.Time          `json:"due_date,omitempty"`
	Assignees          []Assignment        `json:"assignees"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func (d *ChoreDefinition) Assignment(participantID string) (Assignment, bool) {
	for _, a := range d.Assignees {
		if a.ParticipantID == participantID {
			return a, true
		}
	}
	return Assignment{}, false
}

func (d *ChoreDefinition) IsAssigned(participantID string) bool {
	_, ok := d.Assignment(participantID)
	return ok
}

func (d *ChoreDefinition) ParticipantIDs() []string {
	ids := make([]string, 0, len(d.Assignees))
	for _, a := range d.Assignees {
		ids = append(ids, a.ParticipantID)
	}
	return ids
}

// RewardFor resolves the reward a participant earns for this chore.
func (d *ChoreDefinition) RewardFor(participantID string) float64 {
	a, _ := d.Assignment(participantID)
	return Effective(a.Reward, d.Reward)
}

// DaysFor resolves the applicable days for a participant.
func (d *ChoreDefinition) DaysFor(participantID string) recurrence.Weekdays {
	a, _ := d.Assignment(participantID)
	return Effective(a.ApplicableDays, d.ApplicableDays)
}

// Effective returns the override when set, otherwise the template default.
func Effective[T any](override *T, fallback T) T {
	if override != nil {
		return *override
	}
	return fallback
}

// InstanceKey identifies an instance. Participant is empty for shared chores.
type InstanceKey struct {
	Chore       string
	Participant string
}

func (k InstanceKey) String() string {
	if k.Participant == "" {
		return k.Chore
	}
	return k.Chore + "/" + k.Participant
}

// KeyFor returns the instance key that holds participantID's state for a
// chore with the given completion criteria.
func KeyFor(chore string, criteria CompletionCriteria, participantID string) InstanceKey {
	if criteria.IsShared() {
		return InstanceKey{Chore: chore}
	}
	return InstanceKey{Chore: chore, Participant: participantID}
}

// Stats are cumulative per-participant counters. Streaks only count
// consecutive calendar days.
type Stats struct {
	Claims         int        `json:"claims"`
	Approvals      int        `json:"approvals"`
	Disapprovals   int        `json:"disapprovals"`
	Overdues       int        `json:"overdues"`
	CurrentStreak  int        `json:"current_streak"`
	HighestStreak  int        `json:"highest_streak"`
	LastStreakDate *time.Time `json:"last_streak_date,omitempty"`
}

// Progress is one participant's state within an instance.
type Progress struct {
	State        State      `json:"state"`
	LastClaimed  *time.Time `json:"last_claimed,omitempty"`
	LastApproved *time.Time `json:"last_approved,omitempty"`
	Stats        Stats      `json:"stats"`
}

// ChoreInstance is the live state of a chore. Independent chores have one
// instance per participant with a single Progress entry; shared chores have
// one instance with a Progress entry per assignee.
type ChoreInstance struct {
	Chore             string               `json:"chore"`
	Participant       string               `json:"participant_id,omitempty"`
	Criteria          CompletionCriteria   `json:"completion_criteria"`
	DueDate           *time.Time           `json:"due_date,omitempty"`
	ApplicableDays    *recurrence.Weekdays `json:"applicable_days,omitempty"`
	ClaimedBy         string               `json:"claimed_by,omitempty"`
	Progress          map[string]*Progress `json:"progress"`
	LastOverdue       *time.Time           `json:"last_overdue,omitempty"`
	LastResetBoundary *time.Time           `json:"last_reset_boundary,omitempty"`
	PeriodStart       *time.Time           `json:"period_start,omitempty"`
	ApprovalsInPeriod int                  `json:"approvals_in_period"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func (i *ChoreInstance) Key() InstanceKey {
	return InstanceKey{Chore: i.Chore, Participant: i.Participant}
}

// Participants returns the participant IDs tracked by this instance in a
// stable order.
func (i *ChoreInstance) Participants() []string {
	ids := make([]string, 0, len(i.Progress))
	for id := range i.Progress {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ViewFor is the state as seen by one participant.
func (i *ChoreInstance) ViewFor(participantID string) State {
	p, ok := i.Progress[participantID]
	if !ok {
		return ""
	}
	return p.State
}

// CompletedBy lists participants whose part is approved (SharedAll's
// completion set).
func (i *ChoreInstance) CompletedBy() []string {
	var ids []string
	for _, id := range i.Participants() {
		if i.Progress[id].State == StateApproved {
			ids = append(ids, id)
		}
	}
	return ids
}

// Aggregate derives the instance-level state from per-participant progress.
// It is never stored.
func (i *ChoreInstance) Aggregate() State {
	if len(i.Progress) == 0 {
		return StatePending
	}

	var approved, claimed, overdue int
	for _, p := range i.Progress {
		switch p.State {
		case StateApproved:
			approved++
		case StateClaimed:
			claimed++
		case StateClaimedOverdue:
			claimed++
			overdue++
		case StateOverdue:
			overdue++
		}
	}
	total := len(i.Progress)

	switch i.Criteria {
	case SharedAll:
		switch {
		case approved == total:
			return StateApproved
		case approved > 0:
			return StateApprovedInPart
		case claimed == total:
			if overdue > 0 {
				return StateClaimedOverdue
			}
			return StateClaimed
		case claimed > 0:
			return StateClaimedInPart
		case overdue > 0:
			return StateOverdue
		}
		return StatePending
	case SharedFirst:
		switch {
		case approved > 0:
			return StateApproved
		case claimed > 0 && overdue > 0:
			return StateClaimedOverdue
		case claimed > 0:
			return StateClaimed
		case overdue > 0:
			return StateOverdue
		}
		return StatePending
	}

	for _, p := range i.Progress {
		return p.State
	}
	return StatePending
}
