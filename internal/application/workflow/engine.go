package workflow

import (
	"context"
	"errors"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/event"
	domainwf "github.com/garyjia/agency-ops/internal/domain/workflow"
)

// Engine runs workflow transitions as atomic units of work. Events recorded
// inside a unit are persisted with the unit's transaction and broadcast only
// after it committed.
type Engine interface {
	// Run executes fn in a transaction and returns the events it recorded.
	// If fn or the commit fails, nothing is persisted and nothing is broadcast.
	Run(ctx context.Context, fn func(ctx context.Context, unit *Unit) error) ([]*event.Event, error)
}

// Unit is the handle a transition uses to record its events
type Unit struct {
	recorder recorder.Recorder
	events   []*event.Event
}

// Record persists a workflow event within the unit's transaction
func (u *Unit) Record(ctx context.Context, in recorder.Input) (*event.Event, error) {
	in.DeferBroadcast = true

	evt, err := u.recorder.Record(ctx, in)
	if err != nil {
		return nil, err
	}

	u.events = append(u.events, evt)
	return evt, nil
}

// Events returns what the unit recorded so far
func (u *Unit) Events() []*event.Event {
	return u.events
}

type engineImpl struct {
	txManager port.TransactionManager
	recorder  recorder.Recorder
}

// NewEngine creates a new workflow engine
func NewEngine(txManager port.TransactionManager, rec recorder.Recorder) Engine {
	return &engineImpl{
		txManager: txManager,
		recorder:  rec,
	}
}

func (e *engineImpl) Run(ctx context.Context, fn func(ctx context.Context, unit *Unit) error) ([]*event.Event, error) {
	unit := &Unit{recorder: e.recorder}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return fn(txCtx, unit)
	})
	if err != nil {
		return nil, err
	}

	for _, evt := range unit.events {
		e.recorder.Broadcast(ctx, evt)
	}

	return unit.events, nil
}

// Fire moves m by trigger. Transitions the lifecycle does not allow are
// reported as validation failures.
func Fire(ctx context.Context, m domainwf.StateMachine, trigger domainwf.Trigger) (domainwf.Transition, error) {
	t, err := m.Fire(ctx, trigger)
	if err != nil {
		if errors.Is(err, domainwf.ErrInvalidTransition) || errors.Is(err, domainwf.ErrGuardFailed) {
			return t, apperr.Validation("cannot %s a %s in status %s", trigger, m.Name(), m.State())
		}
		return t, err
	}
	return t, nil
}
