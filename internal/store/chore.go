package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

// ChoreStore persists chore definitions and their instances. It satisfies
// chore.Store.
type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

// --- Definition methods ---

func scanDefinition(scanner interface{ Scan(...any) error }) (*model.ChoreDefinition, error) {
	var d model.ChoreDefinition
	var rule string
	var days int64
	var due sql.NullTime

	err := scanner.Scan(
		&d.Name, &d.Description, &d.Reward, &d.CompletionCriteria, &rule, &days,
		&d.ResetType, &d.PendingClaimAction, &d.OverdueHandling, &due,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	spec, err := recurrence.Parse(rule)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence %q: %w", rule, err)
	}
	d.Recurrence = spec
	d.ApplicableDays = recurrence.Weekdays(days)
	d.DueDate = timeFrom(due)
	return &d, nil
}

const definitionCols = `name, description, reward, completion_criteria, recurrence, applicable_days,
	reset_type, pending_claim_action, overdue_handling, due_date, created_at, updated_at`

func (s *ChoreStore) GetDefinition(ctx context.Context, name string) (*model.ChoreDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+definitionCols+` FROM chore_definitions WHERE name = ?`, name)
	d, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}

	assignees, err := s.listAssignments(ctx, d.Name)
	if err != nil {
		return nil, err
	}
	d.Assignees = assignees
	return d, nil
}

func (s *ChoreStore) ListDefinitions(ctx context.Context) ([]model.ChoreDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+definitionCols+` FROM chore_definitions ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []model.ChoreDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range defs {
		assignees, err := s.listAssignments(ctx, defs[i].Name)
		if err != nil {
			return nil, err
		}
		defs[i].Assignees = assignees
	}
	return defs, nil
}

func (s *ChoreStore) listAssignments(ctx context.Context, chore string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, reward, applicable_days FROM chore_assignments WHERE chore = ? ORDER BY position ASC`,
		chore,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignees []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var reward sql.NullFloat64
		var days sql.NullInt64
		if err := rows.Scan(&a.ParticipantID, &reward, &days); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if reward.Valid {
			a.Reward = &reward.Float64
		}
		a.ApplicableDays = daysFrom(days)
		assignees = append(assignees, a)
	}
	return assignees, rows.Err()
}

// SaveDefinition upserts the definition and replaces its assignments.
// The upsert keeps the row in place so instances are not cascaded away.
func (s *ChoreStore) SaveDefinition(ctx context.Context, d *model.ChoreDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chore_definitions (`+definitionCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			reward = excluded.reward,
			completion_criteria = excluded.completion_criteria,
			recurrence = excluded.recurrence,
			applicable_days = excluded.applicable_days,
			reset_type = excluded.reset_type,
			pending_claim_action = excluded.pending_claim_action,
			overdue_handling = excluded.overdue_handling,
			due_date = excluded.due_date,
			updated_at = excluded.updated_at`,
		d.Name, d.Description, d.Reward, d.CompletionCriteria, d.Recurrence.String(), int64(d.ApplicableDays),
		d.ResetType, d.PendingClaimAction, d.OverdueHandling, nullTime(d.DueDate),
		d.CreatedAt.UTC(), d.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert definition: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chore_assignments WHERE chore = ?`, d.Name); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chore_assignments (chore, participant_id, position, reward, applicable_days) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, a := range d.Assignees {
		var reward sql.NullFloat64
		if a.Reward != nil {
			reward = sql.NullFloat64{Float64: *a.Reward, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, d.Name, a.ParticipantID, i, reward, nullDays(a.ApplicableDays)); err != nil {
			return fmt.Errorf("insert assignment %s: %w", a.ParticipantID, err)
		}
	}

	return tx.Commit()
}

func (s *ChoreStore) DeleteDefinition(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chore_definitions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	return nil
}

// --- Instance methods ---

func scanInstance(scanner interface{ Scan(...any) error }) (*model.ChoreInstance, error) {
	var i model.ChoreInstance
	var due, lastOverdue, lastReset, periodStart sql.NullTime
	var days sql.NullInt64

	err := scanner.Scan(
		&i.Chore, &i.Participant, &i.Criteria, &due, &days, &i.ClaimedBy,
		&lastOverdue, &lastReset, &periodStart, &i.ApprovalsInPeriod, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	i.DueDate = timeFrom(due)
	i.ApplicableDays = daysFrom(days)
	i.LastOverdue = timeFrom(lastOverdue)
	i.LastResetBoundary = timeFrom(lastReset)
	i.PeriodStart = timeFrom(periodStart)
	i.Progress = make(map[string]*model.Progress)
	return &i, nil
}

const instanceCols = `chore, participant_id, criteria, due_date, applicable_days, claimed_by,
	last_overdue, last_reset_boundary, period_start, approvals_in_period, updated_at`

func (s *ChoreStore) GetInstance(ctx context.Context, key model.InstanceKey) (*model.ChoreInstance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceCols+` FROM chore_instances WHERE chore = ? AND participant_id = ?`,
		key.Chore, key.Participant,
	)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if err := s.loadProgress(ctx, []*model.ChoreInstance{inst}); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *ChoreStore) ListInstances(ctx context.Context, chore string) ([]model.ChoreInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceCols+` FROM chore_instances WHERE chore = ? ORDER BY participant_id ASC`,
		chore,
	)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var ptrs []*model.ChoreInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		ptrs = append(ptrs, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadProgress(ctx, ptrs); err != nil {
		return nil, err
	}
	insts := make([]model.ChoreInstance, 0, len(ptrs))
	for _, inst := range ptrs {
		insts = append(insts, *inst)
	}
	return insts, nil
}

const progressCols = `participant_id, state, last_claimed, last_approved, claims, approvals,
	disapprovals, overdues, current_streak, highest_streak, last_streak_date`

func (s *ChoreStore) loadProgress(ctx context.Context, insts []*model.ChoreInstance) error {
	for _, inst := range insts {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+progressCols+` FROM instance_progress WHERE chore = ? AND instance_participant = ?`,
			inst.Chore, inst.Participant,
		)
		if err != nil {
			return fmt.Errorf("list progress: %w", err)
		}

		for rows.Next() {
			var pid string
			var p model.Progress
			var lastClaimed, lastApproved, lastStreak sql.NullTime
			err := rows.Scan(
				&pid, &p.State, &lastClaimed, &lastApproved, &p.Stats.Claims, &p.Stats.Approvals,
				&p.Stats.Disapprovals, &p.Stats.Overdues, &p.Stats.CurrentStreak, &p.Stats.HighestStreak, &lastStreak,
			)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan progress: %w", err)
			}
			p.LastClaimed = timeFrom(lastClaimed)
			p.LastApproved = timeFrom(lastApproved)
			p.Stats.LastStreakDate = timeFrom(lastStreak)
			inst.Progress[pid] = &p
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("list progress: %w", err)
		}
	}
	return nil
}

// SaveInstance writes the instance and all of its progress rows in one
// transaction.
func (s *ChoreStore) SaveInstance(ctx context.Context, inst *model.ChoreInstance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chore_instances (`+instanceCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chore, participant_id) DO UPDATE SET
			criteria = excluded.criteria,
			due_date = excluded.due_date,
			applicable_days = excluded.applicable_days,
			claimed_by = excluded.claimed_by,
			last_overdue = excluded.last_overdue,
			last_reset_boundary = excluded.last_reset_boundary,
			period_start = excluded.period_start,
			approvals_in_period = excluded.approvals_in_period,
			updated_at = excluded.updated_at`,
		inst.Chore, inst.Participant, inst.Criteria, nullTime(inst.DueDate), nullDays(inst.ApplicableDays), inst.ClaimedBy,
		nullTime(inst.LastOverdue), nullTime(inst.LastResetBoundary), nullTime(inst.PeriodStart), inst.ApprovalsInPeriod,
		inst.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM instance_progress WHERE chore = ? AND instance_participant = ?`,
		inst.Chore, inst.Participant,
	); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO instance_progress (chore, instance_participant, `+progressCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, pid := range inst.Participants() {
		p := inst.Progress[pid]
		_, err := stmt.ExecContext(ctx,
			inst.Chore, inst.Participant, pid, p.State, nullTime(p.LastClaimed), nullTime(p.LastApproved),
			p.Stats.Claims, p.Stats.Approvals, p.Stats.Disapprovals, p.Stats.Overdues,
			p.Stats.CurrentStreak, p.Stats.HighestStreak, nullTime(p.Stats.LastStreakDate),
		)
		if err != nil {
			return fmt.Errorf("insert progress %s: %w", pid, err)
		}
	}

	return tx.Commit()
}

func (s *ChoreStore) DeleteInstance(ctx context.Context, key model.InstanceKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chore_instances WHERE chore = ? AND participant_id = ?`,
		key.Chore, key.Participant,
	)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timeFrom(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullDays(d *recurrence.Weekdays) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*d), Valid: true}
}

func daysFrom(d sql.NullInt64) *recurrence.Weekdays {
	if !d.Valid {
		return nil
	}
	w := recurrence.Weekdays(d.Int64)
	return &w
}
