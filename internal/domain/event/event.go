package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable record of an entity's status transition. The same
// value is persisted as an activity log row and fanned out to live subscribers.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Entity    Entity                 `json:"entity"`
	EntityID  string                 `json:"entity_id"`
	ProjectID string                 `json:"project_id,omitempty"`
	ActorID   string                 `json:"actor_id"`
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates a workflow event with a generated ID and derived type.
// The status is also written into the metadata.
func NewEvent(entity Entity, entityID, actorID, status string, metadata map[string]interface{}) *Event {
	md := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["status"] = status

	return &Event{
		ID:        uuid.NewString(),
		Type:      NewType(entity, status),
		Entity:    entity,
		EntityID:  entityID,
		ActorID:   actorID,
		Status:    status,
		Metadata:  md,
		Timestamp: time.Now().UTC(),
	}
}

// GetMetadataString retrieves a string value from the metadata
func (e *Event) GetMetadataString(key string) string {
	if val, ok := e.Metadata[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetMetadataFloat retrieves a float64 value from the metadata
func (e *Event) GetMetadataFloat(key string) float64 {
	if val, ok := e.Metadata[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0.0
}

// GetMetadataBool retrieves a bool value from the metadata
func (e *Event) GetMetadataBool(key string) bool {
	if val, ok := e.Metadata[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// StreamReady is the sentinel sent when a live stream opens
type StreamReady struct {
	Type Type `json:"type"`
}

// NewStreamReady builds the stream sentinel
func NewStreamReady() StreamReady {
	return StreamReady{Type: TypeStreamReady}
}
