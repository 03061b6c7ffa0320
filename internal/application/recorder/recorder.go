package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/agency-ops/internal/application/dispatcher"
	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Input describes one entity transition to record
type Input struct {
	Entity    event.Entity
	EntityID  string
	ProjectID string
	ActorID   string
	Status    string
	Message   string
	Metadata  map[string]interface{}

	// DeferBroadcast persists without publishing; the caller publishes with
	// Broadcast once its transaction committed.
	DeferBroadcast bool
}

// Recorder persists workflow events as activity logs and publishes them
type Recorder interface {
	// Record writes the activity log with the transaction carried in ctx, if any,
	// then publishes unless in.DeferBroadcast is set. Persistence errors are returned;
	// subscriber failures never are.
	Record(ctx context.Context, in Input) (*event.Event, error)

	// Broadcast publishes an already persisted event
	Broadcast(ctx context.Context, evt *event.Event)

	ListByEntity(ctx context.Context, entity event.Entity, entityID string, limit int) ([]*entity.ActivityLog, error)
	ListByProject(ctx context.Context, projectID string, limit int) ([]*entity.ActivityLog, error)
}

type recorderImpl struct {
	activityRepo port.ActivityRepository
	bus          dispatcher.Dispatcher
	logger       Logger
}

// NewRecorder creates a recorder publishing to bus
func NewRecorder(activityRepo port.ActivityRepository, bus dispatcher.Dispatcher, logger Logger) Recorder {
	return &recorderImpl{
		activityRepo: activityRepo,
		bus:          bus,
		logger:       logger,
	}
}

func (r *recorderImpl) Record(ctx context.Context, in Input) (*event.Event, error) {
	if !in.Entity.IsValid() {
		return nil, apperr.Validation("unknown workflow entity %q", in.Entity)
	}
	if strings.TrimSpace(in.EntityID) == "" {
		return nil, apperr.Validation("entity id is required")
	}
	if strings.TrimSpace(in.ActorID) == "" {
		return nil, apperr.Validation("actor id is required")
	}
	if strings.TrimSpace(in.Status) == "" {
		return nil, apperr.Validation("status is required")
	}

	evt := event.NewEvent(in.Entity, in.EntityID, in.ActorID, in.Status, in.Metadata)
	evt.ProjectID = in.ProjectID
	evt.Message = in.Message

	log := &entity.ActivityLog{
		ID:        evt.ID,
		Entity:    string(evt.Entity),
		EntityID:  evt.EntityID,
		ActorID:   evt.ActorID,
		Type:      evt.Type.String(),
		Text:      evt.Message,
		Metadata:  evt.Metadata,
		CreatedAt: evt.Timestamp,
	}
	if in.ProjectID != "" {
		projectID := in.ProjectID
		log.ProjectID = &projectID
	}

	if err := r.activityRepo.Create(ctx, log); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", evt.Type, err)
	}

	if !in.DeferBroadcast {
		r.Broadcast(ctx, evt)
	}

	return evt, nil
}

func (r *recorderImpl) Broadcast(ctx context.Context, evt *event.Event) {
	if r.bus == nil || evt == nil {
		return
	}
	// delivery is not tied to the request's cancellation
	if isAsyncBroadcast(ctx) {
		r.bus.PublishAsync(context.WithoutCancel(ctx), evt)
		return
	}
	r.bus.Publish(context.WithoutCancel(ctx), evt)
}

type asyncBroadcastKey struct{}

// WithAsyncBroadcast marks ctx so Broadcast hands events to the bus without
// waiting for subscribers. Background jobs use it; closing the bus still
// waits for those deliveries.
func WithAsyncBroadcast(ctx context.Context) context.Context {
	return context.WithValue(ctx, asyncBroadcastKey{}, true)
}

func isAsyncBroadcast(ctx context.Context) bool {
	async, _ := ctx.Value(asyncBroadcastKey{}).(bool)
	return async
}

func (r *recorderImpl) ListByEntity(ctx context.Context, e event.Entity, entityID string, limit int) ([]*entity.ActivityLog, error) {
	logs, err := r.activityRepo.ListByEntity(ctx, string(e), entityID, limit)
	if err != nil {
		return nil, err
	}
	return nonNil(logs), nil
}

func (r *recorderImpl) ListByProject(ctx context.Context, projectID string, limit int) ([]*entity.ActivityLog, error) {
	logs, err := r.activityRepo.ListByProject(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	return nonNil(logs), nil
}

func nonNil(logs []*entity.ActivityLog) []*entity.ActivityLog {
	if logs == nil {
		return []*entity.ActivityLog{}
	}
	return logs
}
