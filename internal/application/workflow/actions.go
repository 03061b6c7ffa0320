package workflow

import (
	"github.com/garyjia/agency-ops/internal/domain/entity"
	domainwf "github.com/garyjia/agency-ops/internal/domain/workflow"
)

// intakeUserActions are the intake triggers a user can request directly;
// the estimate and scope triggers are driven by proposals.
var intakeUserActions = map[domainwf.Trigger]bool{
	domainwf.TriggerAssignToMe:         true,
	domainwf.TriggerApproveForEstimate: true,
	domainwf.TriggerReturnForInfo:      true,
	domainwf.TriggerResubmit:           true,
	domainwf.TriggerArchive:            true,
}

// invoiceEndpointActions maps invoice triggers to the action that fires them
var invoiceEndpointActions = map[domainwf.Trigger]string{
	domainwf.TriggerValidationPassed: "revalidate",
	domainwf.TriggerValidationFailed: "revalidate",
	domainwf.TriggerSchedule:         "schedule",
	domainwf.TriggerSend:             "send",
	domainwf.TriggerMarkPaid:         "pay",
}

// IntakeActions lists the actions the intake lifecycle allows from status,
// sorted. Role checks still apply when an action is requested.
func IntakeActions(status entity.IntakeStatus) []string {
	m, err := BuildIntakeMachine(status)
	if err != nil {
		return []string{}
	}

	actions := []string{}
	for _, t := range m.PermittedTriggers() {
		if intakeUserActions[t] {
			actions = append(actions, t.String())
		}
	}
	return actions
}

// InvoiceActions lists the invoice actions allowed from state, in trigger order
func InvoiceActions(state entity.InvoiceWorkflowState) []string {
	m, err := BuildInvoiceMachine(state)
	if err != nil {
		return []string{}
	}

	actions := []string{}
	seen := make(map[string]bool)
	for _, t := range m.PermittedTriggers() {
		action, ok := invoiceEndpointActions[t]
		if !ok || seen[action] {
			continue
		}
		seen[action] = true
		actions = append(actions, action)
	}
	return actions
}
