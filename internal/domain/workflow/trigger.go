package workflow

import (
	"strings"

	"github.com/garyjia/agency-ops/internal/domain/entity"
)

// Trigger represents an action that can cause a state transition
type Trigger string

// Intake triggers
const (
	TriggerAssignToMe         Trigger = "assign_to_me"
	TriggerApproveForEstimate Trigger = "approve_for_estimate"
	TriggerReturnForInfo      Trigger = "return_for_info"
	TriggerResubmit           Trigger = "resubmit"
	TriggerStartEstimate      Trigger = "start_estimate"
	TriggerSendEstimate       Trigger = "send_estimate"
	TriggerScopeApproved      Trigger = "scope_approved"
	TriggerScopeDeclined      Trigger = "scope_declined"
	TriggerArchive            Trigger = "archive"
)

// Proposal triggers
const (
	TriggerSendProposal   Trigger = "send"
	TriggerReviseProposal Trigger = "revise"
	TriggerClientApprove  Trigger = "approve"
	TriggerClientDecline  Trigger = "decline"
)

// TaskTrigger names the trigger that moves a task to status; task triggers
// are the target statuses themselves.
func TaskTrigger(status entity.TaskStatus) Trigger {
	return Trigger(strings.ToLower(string(status)))
}

// Invoice triggers
const (
	TriggerValidationPassed Trigger = "validation_passed"
	TriggerValidationFailed Trigger = "validation_failed"
	TriggerSchedule         Trigger = "schedule"
	TriggerSend             Trigger = "send_invoice"
	TriggerMarkPaid         Trigger = "mark_paid"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
