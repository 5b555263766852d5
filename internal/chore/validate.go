package chore

import (
	"strings"

	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

// Normalize trims the name and fills unset policies with their defaults.
func Normalize(def *model.ChoreDefinition) {
	def.Name = strings.TrimSpace(def.Name)
	if def.CompletionCriteria == "" {
		def.CompletionCriteria = model.Independent
	}
	if def.ResetType == "" {
		def.ResetType = model.ResetAtMidnightOnce
	}
	if def.PendingClaimAction == "" {
		def.PendingClaimAction = model.PendingClaimClear
	}
	if def.OverdueHandling == "" {
		def.OverdueHandling = model.OverdueUntilComplete
	}
}

// Validate rejects definitions that can never run correctly. Errors carry
// CodeConfiguration and are raised before any state is touched.
func Validate(def *model.ChoreDefinition) error {
	invalid := func(format string, args ...any) error {
		return newError(CodeConfiguration, "validate", def.Name, "", format, args...)
	}

	if strings.TrimSpace(def.Name) == "" {
		return invalid("name is required")
	}
	if strings.Contains(def.Name, "/") {
		return invalid("name must not contain '/'")
	}
	if def.Reward < 0 {
		return invalid("reward must not be negative")
	}
	if !def.CompletionCriteria.Valid() {
		return invalid("unknown completion criteria %q", def.CompletionCriteria)
	}
	if !def.ResetType.Valid() {
		return invalid("unknown approval reset type %q", def.ResetType)
	}
	if !def.PendingClaimAction.Valid() {
		return invalid("unknown pending claim action %q", def.PendingClaimAction)
	}
	if !def.OverdueHandling.Valid() {
		return invalid("unknown overdue handling %q", def.OverdueHandling)
	}
	if def.ApplicableDays.IsEmpty() {
		return invalid("applicable days must not be empty")
	}
	if err := def.Recurrence.Validate(); err != nil {
		return configError("validate", def.Name, err)
	}
	if def.Recurrence.Freq == recurrence.DailyMulti && def.ResetType.AtMidnight() {
		return invalid("daily_multi recurrence cannot use %s reset; it needs the due date to advance on completion", def.ResetType)
	}

	if len(def.Assignees) == 0 {
		return invalid("at least one participant must be assigned")
	}
	seen := make(map[string]bool, len(def.Assignees))
	for _, a := range def.Assignees {
		if strings.TrimSpace(a.ParticipantID) == "" {
			return invalid("assignee id is required")
		}
		if seen[a.ParticipantID] {
			return invalid("participant %q assigned twice", a.ParticipantID)
		}
		seen[a.ParticipantID] = true
		if a.Reward != nil && *a.Reward < 0 {
			return invalid("reward override for %q must not be negative", a.ParticipantID)
		}
		if a.ApplicableDays != nil && a.ApplicableDays.IsEmpty() {
			return invalid("applicable days override for %q must not be empty", a.ParticipantID)
		}
	}
	return nil
}
