package chore_test

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/recurrence"
)

// memStore is an in-memory chore.Store. It copies on every read and write
// so the engine can never mutate stored state outside of SaveInstance.
type memStore struct {
	mu        sync.Mutex
	defs      map[string]model.ChoreDefinition
	instances map[model.InstanceKey]*model.ChoreInstance
}

func newMemStore() *memStore {
	return &memStore{
		defs:      make(map[string]model.ChoreDefinition),
		instances: make(map[model.InstanceKey]*model.ChoreInstance),
	}
}

func cloneDefinition(d model.ChoreDefinition) model.ChoreDefinition {
	d.Assignees = slices.Clone(d.Assignees)
	return d
}

func cloneInstance(i *model.ChoreInstance) *model.ChoreInstance {
	c := *i
	c.Progress = make(map[string]*model.Progress, len(i.Progress))
	for pid, p := range i.Progress {
		cp := *p
		c.Progress[pid] = &cp
	}
	return &c
}

func (m *memStore) GetDefinition(_ context.Context, name string) (*model.ChoreDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.defs[name]
	if !ok {
		return nil, nil
	}
	d = cloneDefinition(d)
	return &d, nil
}

func (m *memStore) ListDefinitions(_ context.Context) ([]model.ChoreDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var defs []model.ChoreDefinition
	for _, d := range m.defs {
		defs = append(defs, cloneDefinition(d))
	}
	slices.SortFunc(defs, func(a, b model.ChoreDefinition) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs, nil
}

func (m *memStore) SaveDefinition(_ context.Context, def *model.ChoreDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.Name] = cloneDefinition(*def)
	return nil
}

func (m *memStore) DeleteDefinition(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.defs, name)
	return nil
}

func (m *memStore) GetInstance(_ context.Context, key model.InstanceKey) (*model.ChoreInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[key]
	if !ok {
		return nil, nil
	}
	return cloneInstance(inst), nil
}

func (m *memStore) ListInstances(_ context.Context, name string) ([]model.ChoreInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ChoreInstance
	for key, inst := range m.instances {
		if key.Chore == name {
			out = append(out, *cloneInstance(inst))
		}
	}
	slices.SortFunc(out, func(a, b model.ChoreInstance) int {
		return cmp.Compare(a.Key().String(), b.Key().String())
	})
	return out, nil
}

func (m *memStore) SaveInstance(_ context.Context, inst *model.ChoreInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.Key()] = cloneInstance(inst)
	return nil
}

func (m *memStore) DeleteInstance(_ context.Context, key model.InstanceKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, key)
	return nil
}

type memDirectory map[string]*model.Participant

func (d memDirectory) GetParticipant(_ context.Context, id string) (*model.Participant, error) {
	return d[id], nil
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(_ context.Context, evt model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) ofType(typ model.EventType) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Monday 5 January 2026, 09:00 UTC.
var start = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	ctx    context.Context
	engine *chore.Engine
	store  *memStore
	clock  *chore.FakeClock
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := memDirectory{
		"alice":  {ID: "alice", Name: "Alice", Role: model.RoleParticipant},
		"bob":    {ID: "bob", Name: "Bob", Role: model.RoleParticipant},
		"carol":  {ID: "carol", Name: "Carol", Role: model.RoleParticipant},
		"parent": {ID: "parent", Name: "Parent", Role: model.RoleApprover},
	}
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		store:  newMemStore(),
		clock:  chore.NewFakeClock(start),
		events: &recorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.engine = chore.New(h.store, dir, h.events, h.clock, chore.Config{Location: time.UTC, LockTimeout: time.Second}, logger)
	return h
}

func daily(name string, criteria model.CompletionCriteria, assignees ...string) model.ChoreDefinition {
	def := model.ChoreDefinition{
		Name:               name,
		Reward:             1,
		CompletionCriteria: criteria,
		Recurrence:         recurrence.Spec{Freq: recurrence.Daily},
		ApplicableDays:     recurrence.AllDays,
	}
	for _, id := range assignees {
		def.Assignees = append(def.Assignees, model.Assignment{ParticipantID: id})
	}
	return def
}

func (h *harness) define(def model.ChoreDefinition) {
	h.t.Helper()
	_, err := h.engine.Define(h.ctx, def)
	require.NoError(h.t, err)
}

func (h *harness) view(name, pid string) chore.View {
	h.t.Helper()
	v, err := h.engine.ViewOf(h.ctx, name, pid)
	require.NoError(h.t, err)
	return v
}

func (h *harness) at(t time.Time) {
	h.clock.Set(t)
}

func (h *harness) tick() {
	h.t.Helper()
	require.NoError(h.t, h.engine.Tick(h.ctx))
}

func (h *harness) claim(name, pid string) chore.View {
	h.t.Helper()
	v, err := h.engine.Claim(h.ctx, name, pid, pid)
	require.NoError(h.t, err)
	return v
}

func (h *harness) approve(name, pid string) chore.View {
	h.t.Helper()
	v, err := h.engine.Approve(h.ctx, name, pid, "parent", nil)
	require.NoError(h.t, err)
	return v
}

func requireCode(t *testing.T, err error, code chore.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, chore.CodeOf(err), "error: %v", err)
}

func day(d, hour, minute int) time.Time {
	return time.Date(2026, 1, d, hour, minute, 0, 0, time.UTC)
}
