package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/choreflow/internal/model"
)

func TestPublishCountsEvents(t *testing.T) {
	m := NewChoreMetrics()
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, model.Event{Type: model.EventClaimed, Chore: "dishes", Participant: "alice"}))
	require.NoError(t, m.Publish(ctx, model.Event{Type: model.EventApproved, Chore: "dishes", Participant: "alice", Amount: 2}))
	require.NoError(t, m.Publish(ctx, model.Event{Type: model.EventApproved, Chore: "lawn", Participant: "alice", Amount: 3.5, Late: true}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("chore_claimed", "dishes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("chore_approved", "lawn")))
	assert.Equal(t, 5.5, testutil.ToFloat64(m.awarded.WithLabelValues("alice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.late))
}

func TestObserveTick(t *testing.T) {
	m := NewChoreMetrics()
	m.ObserveTick(10*time.Millisecond, nil)
	m.ObserveTick(time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewChoreMetrics()
	require.NoError(t, m.Publish(context.Background(), model.Event{Type: model.EventOverdue, Chore: "dishes"}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `choreflow_events_total{chore="dishes",type="chore_overdue"} 1`))
}
