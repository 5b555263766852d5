package model

import "time"

type EventType string

const (
	EventClaimed     EventType = "chore_claimed"
	EventApproved    EventType = "chore_approved"
	EventDisapproved EventType = "chore_disapproved"
	EventReset       EventType = "chore_reset"
	EventOverdue     EventType = "chore_overdue"
)

// Event is emitted once per committed transition. Amount is only set on
// EventApproved.
type Event struct {
	ID          string     `json:"id"`
	Type        EventType  `json:"type"`
	Chore       string     `json:"chore"`
	Participant string     `json:"participant_id,omitempty"`
	Actor       string     `json:"actor_id,omitempty"`
	Amount      float64    `json:"amount,omitempty"`
	State       State      `json:"state"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Late        bool       `json:"late,omitempty"`
	Undo        bool       `json:"undo,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// PointBalance sums approved amounts for one participant from the event log.
type PointBalance struct {
	ParticipantID string  `json:"participant_id"`
	Approvals     int     `json:"approvals"`
	TotalEarned   float64 `json:"total_earned"`
}
