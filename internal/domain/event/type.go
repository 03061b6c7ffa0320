package event

import (
	"fmt"
	"strings"
)

// Type is the derived tag of a workflow event, "workflow:{entity}:{status}"
type Type string

// TypeStreamReady is sent once when a live stream connects; it is never persisted
const TypeStreamReady Type = "workflow.stream.ready"

const typePrefix = "workflow"

// NewType derives the type tag for an entity reaching a status
func NewType(entity Entity, status string) Type {
	return Type(fmt.Sprintf("%s:%s:%s", typePrefix, entity, status))
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// Parts splits a workflow type tag into entity and status
func (t Type) Parts() (Entity, string, bool) {
	parts := strings.SplitN(string(t), ":", 3)
	if len(parts) != 3 || parts[0] != typePrefix {
		return "", "", false
	}
	return Entity(parts[1]), parts[2], true
}

// IsValid checks the type follows the workflow tag format
func (t Type) IsValid() bool {
	entity, status, ok := t.Parts()
	return ok && entity.IsValid() && status != ""
}

// Entity names the kind of record a workflow event is about
type Entity string

const (
	EntityIntake   Entity = "intake"
	EntityProposal Entity = "proposal"
	EntityProject  Entity = "project"
	EntityTask     Entity = "task"
	EntityFile     Entity = "file"
	EntityInvoice  Entity = "invoice"
)

// IsValid reports whether e is a known entity
func (e Entity) IsValid() bool {
	switch e {
	case EntityIntake, EntityProposal, EntityProject, EntityTask, EntityFile, EntityInvoice:
		return true
	}
	return false
}

// String returns the string representation of the entity
func (e Entity) String() string {
	return string(e)
}

// Non-status actions recorded as the event status
const (
	StatusDraftCreated    = "draft_created"
	StatusTimeLogged      = "time_logged"
	StatusBillingDeferred = "billing_deferred"
	StatusChecklistUpdate = "checklist_updated"
	StatusRegistered      = "registered"
	StatusOnboarding      = "onboarding_updated"
	StatusCreated         = "created"
)
