package entity

import "time"

// ActivityLog is the durable record of a workflow event. Rows are never updated.
type ActivityLog struct {
	ID        string                 `json:"id"`
	Entity    string                 `json:"entity"`
	EntityID  string                 `json:"entity_id"`
	ProjectID *string                `json:"project_id,omitempty"`
	ActorID   string                 `json:"actor_id"`
	Type      string                 `json:"type"`
	Text      string                 `json:"text"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}
