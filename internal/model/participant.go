package model

import "time"

type Role string

const (
	RoleParticipant Role = "participant"
	RoleApprover    Role = "approver"
)

func (r Role) Valid() bool {
	return r == RoleParticipant || r == RoleApprover
}

// Participant is anyone who can be assigned chores or act on them.
// Approvers may approve, disapprove and claim on behalf of others.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Participant) IsApprover() bool {
	return p != nil && p.Role == RoleApprover
}
