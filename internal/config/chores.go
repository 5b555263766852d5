package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("weekday", validateWeekday)
	_ = validate.RegisterValidation("rrule", validateRule)
}

func validateWeekday(fl validator.FieldLevel) bool {
	_, err := recurrence.ParseWeekdays([]string{fl.Field().String()})
	return err == nil
}

func validateRule(fl validator.FieldLevel) bool {
	_, err := recurrence.Parse(fl.Field().String())
	return err == nil
}

// ChoresFile is the YAML document declaring participants and chores.
type ChoresFile struct {
	Participants []ParticipantRecord `yaml:"participants" validate:"unique=ID,dive"`
	Chores       []ChoreRecord       `yaml:"chores" validate:"unique=Name,dive"`
}

type ParticipantRecord struct {
	ID   string `yaml:"id" validate:"required,max=64"`
	Name string `yaml:"name" validate:"required,max=128"`
	Role string `yaml:"role" validate:"omitempty,oneof=participant approver"`
	PIN  string `yaml:"pin" validate:"omitempty,numeric,min=4,max=8"`
}

// EffectiveRole defaults an empty role to participant.
func (p ParticipantRecord) EffectiveRole() model.Role {
	if p.Role == "" {
		return model.RoleParticipant
	}
	return model.Role(p.Role)
}

type AssigneeRecord struct {
	ID             string   `yaml:"id" validate:"required"`
	Reward         *float64 `yaml:"reward" validate:"omitempty,gte=0"`
	ApplicableDays []string `yaml:"applicable_days" validate:"omitempty,dive,weekday"`
}

type ChoreRecord struct {
	Name               string           `yaml:"name" validate:"required,max=128"`
	Description        string           `yaml:"description"`
	Reward             float64          `yaml:"reward" validate:"gte=0"`
	CompletionCriteria string           `yaml:"completion_criteria" validate:"omitempty,oneof=independent shared_all shared_first"`
	Recurrence         string           `yaml:"recurrence" validate:"omitempty,rrule"`
	ApplicableDays     []string         `yaml:"applicable_days" validate:"omitempty,dive,weekday"`
	ResetType          string           `yaml:"approval_reset_type" validate:"omitempty,oneof=at_midnight_once at_midnight_multi at_due_date_once at_due_date_multi upon_completion"`
	PendingClaimAction string           `yaml:"pending_claim_action" validate:"omitempty,oneof=clear hold auto_approve"`
	OverdueHandling    string           `yaml:"overdue_handling_type" validate:"omitempty,oneof=until_complete never clear_at_reset clear_immediate_on_late"`
	DueDate            string           `yaml:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Assignees          []AssigneeRecord `yaml:"assignees" validate:"required,min=1,unique=ID,dive"`
}

// LoadChores reads and validates a chores file.
func LoadChores(path string) (*ChoresFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chores file: %w", err)
	}
	return ParseChores(data)
}

// ParseChores decodes a chores document, rejecting unknown fields, and
// validates it.
func ParseChores(data []byte) (*ChoresFile, error) {
	var f ChoresFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chores file: %w", err)
	}
	return &f, nil
}

// Validate checks field tags, cross references and the chore rules the
// engine enforces on Define.
func (f *ChoresFile) Validate() error {
	if err := validate.Struct(f); err != nil {
		return err
	}

	declared := make(map[string]bool, len(f.Participants))
	for _, p := range f.Participants {
		if p.EffectiveRole() == model.RoleApprover && p.PIN == "" {
			return fmt.Errorf("participant %q: approvers need a pin", p.ID)
		}
		declared[p.ID] = true
	}
	for _, c := range f.Chores {
		for _, a := range c.Assignees {
			if !declared[a.ID] {
				return fmt.Errorf("chore %q: assignee %q is not a declared participant", c.Name, a.ID)
			}
		}
	}

	_, err := f.Definitions()
	return err
}

// Definitions converts every chore record, normalized and validated.
func (f *ChoresFile) Definitions() ([]model.ChoreDefinition, error) {
	defs := make([]model.ChoreDefinition, 0, len(f.Chores))
	for _, c := range f.Chores {
		def, err := c.Definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Definition converts the record into a chore definition. Missing
// applicable days mean every day.
func (c ChoreRecord) Definition() (model.ChoreDefinition, error) {
	def := model.ChoreDefinition{
		Name:               c.Name,
		Description:        c.Description,
		Reward:             c.Reward,
		CompletionCriteria: model.CompletionCriteria(c.CompletionCriteria),
		ResetType:          model.ResetType(c.ResetType),
		PendingClaimAction: model.PendingClaimAction(c.PendingClaimAction),
		OverdueHandling:    model.OverdueHandling(c.OverdueHandling),
	}

	spec, err := recurrence.Parse(c.Recurrence)
	if err != nil {
		return model.ChoreDefinition{}, fmt.Errorf("chore %q: %w", c.Name, err)
	}
	def.Recurrence = spec

	def.ApplicableDays, err = daysOrAll(c.ApplicableDays)
	if err != nil {
		return model.ChoreDefinition{}, fmt.Errorf("chore %q: %w", c.Name, err)
	}

	if c.DueDate != "" {
		due, err := time.Parse(time.RFC3339, c.DueDate)
		if err != nil {
			return model.ChoreDefinition{}, fmt.Errorf("chore %q: parse due date: %w", c.Name, err)
		}
		def.DueDate = &due
	}

	for _, a := range c.Assignees {
		asg := model.Assignment{ParticipantID: a.ID, Reward: a.Reward}
		if a.ApplicableDays != nil {
			days, err := recurrence.ParseWeekdays(a.ApplicableDays)
			if err != nil {
				return model.ChoreDefinition{}, fmt.Errorf("chore %q: assignee %q: %w", c.Name, a.ID, err)
			}
			asg.ApplicableDays = &days
		}
		def.Assignees = append(def.Assignees, asg)
	}

	chore.Normalize(&def)
	if err := chore.Validate(&def); err != nil {
		return model.ChoreDefinition{}, err
	}
	return def, nil
}

func daysOrAll(names []string) (recurrence.Weekdays, error) {
	if names == nil {
		return recurrence.AllDays, nil
	}
	return recurrence.ParseWeekdays(names)
}
