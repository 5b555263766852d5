package chore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// Location is used for midnight boundaries and streak days.
	Location *time.Location
	// LockTimeout bounds how long an operation waits for an instance lock.
	LockTimeout time.Duration
	// TickConcurrency bounds how many chores a tick processes at once.
	TickConcurrency int
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.TickConcurrency <= 0 {
		c.TickConcurrency = 4
	}
	return c
}

// Engine runs the approval workflow and the reset and overdue drivers.
// Every mutation of an instance happens under that instance's lock; events
// are published after the lock is released.
type Engine struct {
	store  Store
	dir    Directory
	sink   EventSink
	clock  Clock
	cfg    Config
	locks  *lockSet
	logger *slog.Logger
}

func New(store Store, dir Directory, sink EventSink, clock Clock, cfg Config, logger *slog.Logger) *Engine {
	if sink == nil {
		sink = discardSink{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		dir:    dir,
		sink:   sink,
		clock:  clock,
		cfg:    cfg.withDefaults(),
		locks:  newLockSet(),
		logger: logger,
	}
}

func (e *Engine) now() time.Time {
	return e.clock.Now().In(e.cfg.Location)
}

// txn collects the effects of one locked mutation.
type txn struct {
	op     string
	now    time.Time
	dirty  bool
	events []model.Event
}

func (t *txn) emit(evt model.Event) {
	evt.ID = uuid.NewString()
	evt.OccurredAt = t.now
	t.events = append(t.events, evt)
	t.dirty = true
}

// mutate loads the definition and instance for key under the instance lock,
// runs fn, persists the instance if fn changed it, releases the lock and
// then publishes collected events.
func (e *Engine) mutate(ctx context.Context, op string, key model.InstanceKey, fn func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error) (*model.ChoreInstance, error) {
	release, err := e.lock(ctx, op, key)
	if err != nil {
		return nil, err
	}

	inst, tx, err := func() (*model.ChoreInstance, *txn, error) {
		defer release()

		def, err := e.store.GetDefinition(ctx, key.Chore)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: get definition: %w", op, err)
		}
		if def == nil {
			return nil, nil, newError(CodeNotFound, op, key.Chore, key.Participant, "unknown chore")
		}
		inst, err := e.store.GetInstance(ctx, key)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: get instance: %w", op, err)
		}
		if inst == nil {
			return nil, nil, newError(CodeNotFound, op, key.Chore, key.Participant, "no instance")
		}
		e.localize(inst)

		tx := &txn{op: op, now: e.now()}
		if err := fn(def, inst, tx); err != nil {
			return nil, nil, err
		}
		if tx.dirty {
			inst.UpdatedAt = tx.now
			if err := e.store.SaveInstance(ctx, inst); err != nil {
				return nil, nil, fmt.Errorf("%s: save instance: %w", op, err)
			}
		}
		return inst, tx, nil
	}()
	if err != nil {
		return nil, err
	}

	e.publish(ctx, tx.events)
	return inst, nil
}

// localize moves stored timestamps into the engine's location so calendar
// arithmetic happens in local time.
func (e *Engine) localize(inst *model.ChoreInstance) {
	in := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		return timePtr(t.In(e.cfg.Location))
	}
	inst.DueDate = in(inst.DueDate)
	inst.LastOverdue = in(inst.LastOverdue)
	inst.LastResetBoundary = in(inst.LastResetBoundary)
	inst.PeriodStart = in(inst.PeriodStart)
	for _, p := range inst.Progress {
		p.LastClaimed = in(p.LastClaimed)
		p.LastApproved = in(p.LastApproved)
		p.Stats.LastStreakDate = in(p.Stats.LastStreakDate)
	}
}

func (e *Engine) lock(ctx context.Context, op string, key model.InstanceKey) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	defer cancel()

	release, err := e.locks.acquire(lockCtx, key)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, &Error{Code: CodeStateConflict, Op: op, Chore: key.Chore, Participant: key.Participant, Message: "timed out waiting for instance lock", Err: err}
		}
		return nil, fmt.Errorf("%s: acquire lock: %w", op, err)
	}
	return release, nil
}

func (e *Engine) publish(ctx context.Context, events []model.Event) {
	for _, evt := range events {
		if err := e.sink.Publish(ctx, evt); err != nil {
			e.logger.Warn("event sink failed", "event", evt.Type, "chore", evt.Chore, "participant", evt.Participant, "error", err)
		}
	}
}

// Define creates or edits a chore definition and reconciles its instances:
// new assignees get a fresh pending instance, removed assignees lose
// theirs. Existing state is kept.
func (e *Engine) Define(ctx context.Context, def model.ChoreDefinition) (*model.ChoreDefinition, error) {
	const op = "define"

	Normalize(&def)
	if err := Validate(&def); err != nil {
		return nil, err
	}
	for _, pid := range def.ParticipantIDs() {
		p, err := e.dir.GetParticipant(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("%s: get participant: %w", op, err)
		}
		if p == nil {
			return nil, newError(CodeNotFound, op, def.Name, pid, "unknown participant")
		}
	}

	existing, err := e.store.GetDefinition(ctx, def.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: get definition: %w", op, err)
	}
	now := e.now()
	def.UpdatedAt = now
	def.CreatedAt = now
	if existing != nil {
		def.CreatedAt = existing.CreatedAt
	}

	if err := e.store.SaveDefinition(ctx, &def); err != nil {
		return nil, fmt.Errorf("%s: save definition: %w", op, err)
	}
	if err := e.reconcile(ctx, &def, existing); err != nil {
		return nil, err
	}

	e.logger.Info("chore defined", "chore", def.Name, "criteria", def.CompletionCriteria, "assignees", len(def.Assignees))
	return &def, nil
}

func (e *Engine) reconcile(ctx context.Context, def *model.ChoreDefinition, previous *model.ChoreDefinition) error {
	const op = "reconcile"

	wanted := make(map[model.InstanceKey]bool)
	for _, key := range instanceKeys(def) {
		wanted[key] = true
	}

	current, err := e.store.ListInstances(ctx, def.Name)
	if err != nil {
		return fmt.Errorf("%s: list instances: %w", op, err)
	}
	modeChanged := previous != nil && previous.CompletionCriteria != def.CompletionCriteria
	for _, inst := range current {
		key := inst.Key()
		if wanted[key] && !modeChanged {
			continue
		}
		if err := e.withLock(ctx, op, key, func() error {
			return e.store.DeleteInstance(ctx, key)
		}); err != nil {
			return err
		}
	}

	for key := range wanted {
		if err := e.withLock(ctx, op, key, func() error {
			inst, err := e.store.GetInstance(ctx, key)
			if err != nil {
				return fmt.Errorf("%s: get instance: %w", op, err)
			}
			now := e.now()
			if inst == nil {
				inst, err = e.newInstance(def, key, now)
				if err != nil {
					return err
				}
			} else {
				e.syncInstance(def, inst)
			}
			inst.UpdatedAt = now
			return e.store.SaveInstance(ctx, inst)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) withLock(ctx context.Context, op string, key model.InstanceKey, fn func() error) error {
	release, err := e.lock(ctx, op, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (e *Engine) newInstance(def *model.ChoreDefinition, key model.InstanceKey, now time.Time) (*model.ChoreInstance, error) {
	inst := &model.ChoreInstance{
		Chore:       def.Name,
		Participant: key.Participant,
		Criteria:    def.CompletionCriteria,
		Progress:    make(map[string]*model.Progress),
	}
	e.syncInstance(def, inst)

	boundary := startOfDay(now)
	inst.LastResetBoundary = &boundary
	inst.PeriodStart = &boundary

	switch {
	case def.DueDate != nil:
		due := *def.DueDate
		inst.DueDate = &due
	case !def.Recurrence.IsNone():
		due, err := recurrence.NextDue(def.Recurrence, now, e.daysFor(def, inst))
		if err != nil {
			return nil, configError("define", def.Name, err)
		}
		if !due.IsZero() {
			inst.DueDate = &due
		}
	}
	return inst, nil
}

// syncInstance aligns an instance's participants and overrides with the
// definition without touching their state.
func (e *Engine) syncInstance(def *model.ChoreDefinition, inst *model.ChoreInstance) {
	inst.Criteria = def.CompletionCriteria

	members := []string{inst.Participant}
	if def.CompletionCriteria.IsShared() {
		members = def.ParticipantIDs()
	}
	for _, pid := range members {
		if _, ok := inst.Progress[pid]; !ok {
			inst.Progress[pid] = &model.Progress{State: model.StatePending}
		}
	}
	for pid := range inst.Progress {
		if !slices.Contains(members, pid) {
			delete(inst.Progress, pid)
		}
	}
	if inst.ClaimedBy != "" && !slices.Contains(members, inst.ClaimedBy) {
		inst.ClaimedBy = ""
	}

	inst.ApplicableDays = nil
	if !def.CompletionCriteria.IsShared() {
		if a, ok := def.Assignment(inst.Participant); ok && a.ApplicableDays != nil {
			days := *a.ApplicableDays
			inst.ApplicableDays = &days
		}
	}
}

// Remove deletes a definition and every instance derived from it.
func (e *Engine) Remove(ctx context.Context, name string) error {
	const op = "remove"

	def, err := e.store.GetDefinition(ctx, name)
	if err != nil {
		return fmt.Errorf("%s: get definition: %w", op, err)
	}
	if def == nil {
		return newError(CodeNotFound, op, name, "", "unknown chore")
	}

	insts, err := e.store.ListInstances(ctx, name)
	if err != nil {
		return fmt.Errorf("%s: list instances: %w", op, err)
	}
	for _, inst := range insts {
		key := inst.Key()
		if err := e.withLock(ctx, op, key, func() error {
			return e.store.DeleteInstance(ctx, key)
		}); err != nil {
			return err
		}
	}
	if err := e.store.DeleteDefinition(ctx, name); err != nil {
		return fmt.Errorf("%s: delete definition: %w", op, err)
	}
	e.logger.Info("chore removed", "chore", name)
	return nil
}

// RemoveParticipant drops a participant from every assignment and deletes
// or shrinks the instances they were part of. A chore left with no
// assignees is removed.
func (e *Engine) RemoveParticipant(ctx context.Context, participantID string) error {
	const op = "remove participant"

	defs, err := e.store.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("%s: list definitions: %w", op, err)
	}
	for _, def := range defs {
		if !def.IsAssigned(participantID) {
			continue
		}
		def.Assignees = slices.DeleteFunc(def.Assignees, func(a model.Assignment) bool {
			return a.ParticipantID == participantID
		})
		if len(def.Assignees) == 0 {
			if err := e.Remove(ctx, def.Name); err != nil {
				return err
			}
			continue
		}
		if _, err := e.Define(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// Definition returns a definition or a NotFound error.
func (e *Engine) Definition(ctx context.Context, name string) (*model.ChoreDefinition, error) {
	def, err := e.store.GetDefinition(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	if def == nil {
		return nil, newError(CodeNotFound, "definition", name, "", "unknown chore")
	}
	return def, nil
}

func (e *Engine) Definitions(ctx context.Context) ([]model.ChoreDefinition, error) {
	defs, err := e.store.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return defs, nil
}

func (e *Engine) actor(ctx context.Context, op, chore, actorID string) (*model.Participant, error) {
	p, err := e.dir.GetParticipant(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("%s: get actor: %w", op, err)
	}
	if p == nil {
		return nil, newError(CodeNotFound, op, chore, actorID, "unknown actor")
	}
	return p, nil
}

// instanceKeys lists the instances a definition should have.
func instanceKeys(def *model.ChoreDefinition) []model.InstanceKey {
	if def.CompletionCriteria.IsShared() {
		return []model.InstanceKey{{Chore: def.Name}}
	}
	keys := make([]model.InstanceKey, 0, len(def.Assignees))
	for _, pid := range def.ParticipantIDs() {
		keys = append(keys, model.InstanceKey{Chore: def.Name, Participant: pid})
	}
	return keys
}

// keysFor resolves the instances an operation targets. An empty
// participantID selects every instance of the chore.
func keysFor(op string, def *model.ChoreDefinition, participantID string) ([]model.InstanceKey, error) {
	if participantID == "" {
		return instanceKeys(def), nil
	}
	if !def.IsAssigned(participantID) {
		return nil, newError(CodeNotFound, op, def.Name, participantID, "participant not assigned")
	}
	return []model.InstanceKey{model.KeyFor(def.Name, def.CompletionCriteria, participantID)}, nil
}

func (e *Engine) daysFor(def *model.ChoreDefinition, inst *model.ChoreInstance) recurrence.Weekdays {
	if inst.ApplicableDays != nil {
		return *inst.ApplicableDays
	}
	if !def.CompletionCriteria.IsShared() {
		return def.DaysFor(inst.Participant)
	}
	return def.ApplicableDays
}

func configError(op, chore string, err error) error {
	var cfgErr *recurrence.ConfigError
	if errors.As(err, &cfgErr) {
		return &Error{Code: CodeConfiguration, Op: op, Chore: chore, Message: cfgErr.Error(), Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
