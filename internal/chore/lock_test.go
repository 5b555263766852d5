package chore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/choreflow/internal/model"
)

func lockKey(chore, participant string) model.InstanceKey {
	return model.InstanceKey{Chore: chore, Participant: participant}
}

func TestLockSetExcludes(t *testing.T) {
	l := newLockSet()
	ctx := context.Background()

	release, err := l.acquire(ctx, lockKey("dishes", "alice"))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.acquire(waitCtx, lockKey("dishes", "alice"))
	assert.True(t, isTimeout(err))

	other, err := l.acquire(ctx, lockKey("dishes", "bob"))
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := l.acquire(ctx, lockKey("dishes", "alice"))
	require.NoError(t, err)
	again()
}

func TestLockSetDropsIdleKeys(t *testing.T) {
	l := newLockSet()
	ctx := context.Background()

	release, err := l.acquire(ctx, lockKey("dishes", "alice"))
	require.NoError(t, err)
	assert.Equal(t, 1, l.size())

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = l.acquire(waitCtx, lockKey("dishes", "alice"))
	require.Error(t, err)
	assert.Equal(t, 1, l.size(), "timed-out waiter must not leak or drop the held entry")

	release()
	assert.Equal(t, 0, l.size())

	for _, k := range []model.InstanceKey{lockKey("a", "x"), lockKey("b", ""), lockKey("c", "z")} {
		r, err := l.acquire(ctx, k)
		require.NoError(t, err)
		r()
	}
	assert.Equal(t, 0, l.size())
}

func TestLockSetSeparatesLookalikeKeys(t *testing.T) {
	l := newLockSet()
	ctx := context.Background()

	// A shared chore named "a/b" and participant b's instance of chore "a".
	shared, err := l.acquire(ctx, lockKey("a/b", ""))
	require.NoError(t, err)
	defer shared()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	independent, err := l.acquire(waitCtx, lockKey("a", "b"))
	require.NoError(t, err)
	independent()
	assert.Equal(t, 1, l.size())
}
