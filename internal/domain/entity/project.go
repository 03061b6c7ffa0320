package entity

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Project is a client engagement; it owns tasks, files and invoices
type Project struct {
	ID               string           `json:"id"`
	ClientID         string           `json:"client_id"`
	IntakeID         *string          `json:"intake_id,omitempty"`
	ProjectManagerID *string          `json:"project_manager_id,omitempty"`
	Name             string           `json:"name"`
	Status           ProjectStatus    `json:"status"`
	IntakeStatus     IntakeStatus     `json:"intake_status"`
	WorkflowPhase    WorkflowPhase    `json:"workflow_phase"`
	WorkflowMetadata WorkflowMetadata `json:"workflow_metadata"`
	StartDate        *time.Time       `json:"start_date,omitempty"`
	EndDate          *time.Time       `json:"end_date,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// WorkflowMetadata is the semi-structured metadata stored on a project.
// Keys other than the onboarding checklist are preserved untouched.
type WorkflowMetadata struct {
	OnboardingChecklist []OnboardingItem           `json:"onboardingChecklist,omitempty"`
	Extra               map[string]json.RawMessage `json:"-"`
}

const onboardingChecklistKey = "onboardingChecklist"

// UnmarshalJSON accepts the checklist as either a list or an object keyed by item id
func (m *WorkflowMetadata) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.OnboardingChecklist = nil
	if checklist, ok := raw[onboardingChecklistKey]; ok {
		items, err := decodeOnboardingChecklist(checklist)
		if err != nil {
			return err
		}
		m.OnboardingChecklist = items
		delete(raw, onboardingChecklistKey)
	}

	m.Extra = raw
	return nil
}

// MarshalJSON writes the checklist back next to the preserved keys
func (m WorkflowMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.OnboardingChecklist != nil {
		out[onboardingChecklistKey] = m.OnboardingChecklist
	}
	return json.Marshal(out)
}

func decodeOnboardingChecklist(data json.RawMessage) ([]OnboardingItem, error) {
	var list []OnboardingItem
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var keyed map[string]OnboardingItem
	if err := json.Unmarshal(data, &keyed); err != nil {
		// Unrelated shapes are not an onboarding checklist
		return nil, nil
	}

	list = make([]OnboardingItem, 0, len(keyed))
	for id, item := range keyed {
		if item.ID == "" {
			item.ID = id
		}
		list = append(list, item)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// OnboardingStatus is the explicit completion state of an onboarding item
type OnboardingStatus string

const (
	OnboardingStatusPending  OnboardingStatus = "PENDING"
	OnboardingStatusComplete OnboardingStatus = "COMPLETE"
)

// OnboardingItem is one entry of a project's onboarding checklist
type OnboardingItem struct {
	ID     string           `json:"id"`
	Label  string           `json:"label"`
	Status OnboardingStatus `json:"status,omitempty"`
}

// onboardingItemWire includes the legacy completion flags
type onboardingItemWire struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	Title     string           `json:"title"`
	Status    OnboardingStatus `json:"status"`
	Completed *bool            `json:"completed"`
	Complete  *bool            `json:"complete"`
	Done      *bool            `json:"done"`
}

// UnmarshalJSON resolves legacy completed/complete/done flags into Status.
// An item carrying none of them keeps an empty Status and never blocks.
func (o *OnboardingItem) UnmarshalJSON(data []byte) error {
	var w onboardingItemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	o.ID = w.ID
	o.Label = w.Label
	if o.Label == "" {
		o.Label = w.Title
	}
	o.Status = normalizeOnboardingStatus(w.Status)

	if o.Status == "" {
		for _, flag := range []*bool{w.Completed, w.Complete, w.Done} {
			if flag == nil {
				continue
			}
			if *flag {
				o.Status = OnboardingStatusComplete
			} else {
				o.Status = OnboardingStatusPending
			}
			break
		}
	}
	return nil
}

// IsPending reports whether the item explicitly marks itself incomplete
func (o OnboardingItem) IsPending() bool {
	return o.Status == OnboardingStatusPending
}

func normalizeOnboardingStatus(s OnboardingStatus) OnboardingStatus {
	switch OnboardingStatus(strings.ToUpper(strings.TrimSpace(string(s)))) {
	case OnboardingStatusPending:
		return OnboardingStatusPending
	case OnboardingStatusComplete, "COMPLETED", "DONE":
		return OnboardingStatusComplete
	}
	return ""
}

// ProjectFilter narrows project listings
type ProjectFilter struct {
	ClientID string
	Limit    int
	Offset   int
}
