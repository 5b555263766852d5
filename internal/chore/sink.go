package chore

import (
	"context"

	"go.uber.org/multierr"

	"github.com/dukerupert/choreflow/internal/model"
)

// Store persists definitions and instances. Lookups return (nil, nil) when
// the record does not exist.
type Store interface {
	GetDefinition(ctx context.Context, name string) (*model.ChoreDefinition, error)
	ListDefinitions(ctx context.Context) ([]model.ChoreDefinition, error)
	SaveDefinition(ctx context.Context, def *model.ChoreDefinition) error
	DeleteDefinition(ctx context.Context, name string) error

	GetInstance(ctx context.Context, key model.InstanceKey) (*model.ChoreInstance, error)
	ListInstances(ctx context.Context, chore string) ([]model.ChoreInstance, error)
	SaveInstance(ctx context.Context, inst *model.ChoreInstance) error
	DeleteInstance(ctx context.Context, key model.InstanceKey) error
}

// Directory resolves actors and participants.
type Directory interface {
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
}

// EventSink receives committed transitions. A failing sink never rolls
// back or blocks a transition; the engine only logs the error.
type EventSink interface {
	Publish(ctx context.Context, evt model.Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, evt model.Event) error

func (f SinkFunc) Publish(ctx context.Context, evt model.Event) error {
	return f(ctx, evt)
}

// MultiSink delivers every event to each sink in order. One sink failing
// does not stop delivery to the rest.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, evt model.Event) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Publish(ctx, evt))
	}
	return err
}

type discardSink struct{}

func (discardSink) Publish(context.Context, model.Event) error { return nil }
