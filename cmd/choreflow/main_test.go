package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/config"
	"github.com/dukerupert/choreflow/internal/database"
	"github.com/dukerupert/choreflow/internal/model"
	"github.com/dukerupert/choreflow/internal/store"
)

const choresYAML = `
participants:
  - id: alice
    name: Alice
  - id: parent
    name: Parent
    role: approver
    pin: "1234"
chores:
  - name: dishes
    reward: 2
    recurrence: FREQ=DAILY
    assignees:
      - id: alice
  - name: lawn
    recurrence: FREQ=CUSTOM;INTERVAL=2;UNIT=WEEKS;ANCHOR=COMPLETION
    approval_reset_type: upon_completion
    assignees:
      - id: alice
`

func writeChores(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chores.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "choreflow", cmd.Use)

	for _, name := range []string{"serve", "validate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestServeFlags(t *testing.T) {
	cmd := newRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"port", "db", "chores", "log-level"} {
		assert.NotNil(t, serve.Flags().Lookup(name), "flag %s", name)
	}
}

func TestServeOptionsApply(t *testing.T) {
	cfg, err := config.LoadFrom(func(string) string { return "" })
	require.NoError(t, err)

	opts := &serveOptions{Port: "9999", ChoresFile: "x.yaml"}
	opts.apply(&cfg)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "choreflow.db", cfg.DBPath)
	assert.Equal(t, "x.yaml", cfg.ChoresFile)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestValidateCommand(t *testing.T) {
	path := writeChores(t, choresYAML)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "dishes")
	assert.Contains(t, out.String(), "Repeats every 2 weeks after completion")
	assert.Contains(t, out.String(), "ok: 2 participants, 2 chores")
}

func TestValidateCommandRejects(t *testing.T) {
	path := writeChores(t, `
participants:
  - id: alice
    name: Alice
chores:
  - name: dishes
    assignees:
      - id: bob
`)

	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"validate", path})
	assert.Error(t, cmd.Execute())

	cmd = newRootCommand()
	cmd.SetArgs([]string{"validate"})
	assert.Error(t, cmd.Execute(), "missing argument")
}

func TestSeedChores(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	ps := store.NewParticipantStore(db)
	clock := chore.NewFakeClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	engine := chore.New(store.NewChoreStore(db), ps, nil, clock, chore.Config{Location: time.UTC}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	f, err := config.ParseChores([]byte(choresYAML))
	require.NoError(t, err)
	require.NoError(t, seedChores(ctx, ps, engine, f))

	parent, err := ps.GetParticipant(ctx, "parent")
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, model.RoleApprover, parent.Role)
	assert.True(t, parent.HasPIN)

	ok, err := ps.VerifyPIN(ctx, "parent", "1234")
	require.NoError(t, err)
	assert.True(t, ok)

	defs, err := engine.Definitions(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = engine.Claim(ctx, "dishes", "alice", "alice")
	require.NoError(t, err)

	// Seeding again keeps instance state.
	require.NoError(t, seedChores(ctx, ps, engine, f))
	v, err := engine.ViewOf(ctx, "dishes", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StateClaimed, v.State)
}
