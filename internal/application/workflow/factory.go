package workflow

import (
	"github.com/garyjia/agency-ops/internal/domain/entity"
	domainwf "github.com/garyjia/agency-ops/internal/domain/workflow"
)

func st[T ~string](s T) domainwf.State {
	return domainwf.State(s)
}

// BuildIntakeMachine creates a state machine configured for the intake lifecycle
func BuildIntakeMachine(status entity.IntakeStatus) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder("intake")

	var (
		reviewPending = st(entity.IntakeStatusReviewPending)
		assigned      = st(entity.IntakeStatusAssigned)
		approved      = st(entity.IntakeStatusApprovedForEstimate)
		returned      = st(entity.IntakeStatusReturnedForInfo)
		inProgress    = st(entity.IntakeStatusEstimateInProgress)
		sent          = st(entity.IntakeStatusEstimateSent)
		scopeApproved = st(entity.IntakeStatusClientScopeApproved)
		scopeDeclined = st(entity.IntakeStatusClientScopeDeclined)
		archived      = st(entity.IntakeStatusArchived)
	)

	// assign_to_me keeps the status; only the assignee changes
	builder.Configure(reviewPending).
		PermitReentry(domainwf.TriggerAssignToMe).
		Permit(domainwf.TriggerApproveForEstimate, approved).
		Permit(domainwf.TriggerReturnForInfo, returned).
		Permit(domainwf.TriggerStartEstimate, inProgress).
		Permit(domainwf.TriggerSendEstimate, sent).
		Permit(domainwf.TriggerArchive, archived)

	builder.Configure(assigned).
		PermitReentry(domainwf.TriggerAssignToMe).
		Permit(domainwf.TriggerApproveForEstimate, approved).
		Permit(domainwf.TriggerReturnForInfo, returned).
		Permit(domainwf.TriggerStartEstimate, inProgress).
		Permit(domainwf.TriggerSendEstimate, sent).
		Permit(domainwf.TriggerArchive, archived)

	builder.Configure(returned).
		PermitReentry(domainwf.TriggerAssignToMe).
		PermitReentry(domainwf.TriggerReturnForInfo).
		Permit(domainwf.TriggerResubmit, reviewPending).
		Permit(domainwf.TriggerApproveForEstimate, approved).
		Permit(domainwf.TriggerStartEstimate, inProgress).
		Permit(domainwf.TriggerSendEstimate, sent).
		Permit(domainwf.TriggerArchive, archived)

	builder.Configure(approved).
		Permit(domainwf.TriggerReturnForInfo, returned).
		Permit(domainwf.TriggerStartEstimate, inProgress).
		Permit(domainwf.TriggerSendEstimate, sent).
		Permit(domainwf.TriggerArchive, archived)

	builder.Configure(inProgress).
		Permit(domainwf.TriggerSendEstimate, sent).
		Permit(domainwf.TriggerScopeApproved, scopeApproved).
		Permit(domainwf.TriggerScopeDeclined, scopeDeclined).
		Permit(domainwf.TriggerArchive, archived)

	builder.Configure(sent).
		PermitReentry(domainwf.TriggerSendEstimate).
		Permit(domainwf.TriggerScopeApproved, scopeApproved).
		Permit(domainwf.TriggerScopeDeclined, scopeDeclined).
		Permit(domainwf.TriggerArchive, archived)

	builder.Configure(scopeDeclined).
		Permit(domainwf.TriggerStartEstimate, inProgress).
		Permit(domainwf.TriggerSendEstimate, sent).
		Permit(domainwf.TriggerArchive, archived)

	builder.Configure(scopeApproved).
		Permit(domainwf.TriggerArchive, archived)

	// ARCHIVED is terminal

	return builder.Build(st(status))
}

// BuildProposalMachine creates a state machine configured for the proposal lifecycle
func BuildProposalMachine(status entity.ProposalStatus) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder("proposal")

	var (
		draft    = st(entity.ProposalStatusDraft)
		pending  = st(entity.ProposalStatusClientApprovalPending)
		approved = st(entity.ProposalStatusApproved)
		declined = st(entity.ProposalStatusDeclined)
	)

	builder.Configure(draft).
		PermitReentry(domainwf.TriggerReviseProposal).
		Permit(domainwf.TriggerSendProposal, pending).
		Permit(domainwf.TriggerClientApprove, approved).
		Permit(domainwf.TriggerClientDecline, declined)

	builder.Configure(pending).
		PermitReentry(domainwf.TriggerSendProposal).
		Permit(domainwf.TriggerReviseProposal, draft).
		Permit(domainwf.TriggerClientApprove, approved).
		Permit(domainwf.TriggerClientDecline, declined)

	builder.Configure(declined).
		Permit(domainwf.TriggerReviseProposal, draft).
		Permit(domainwf.TriggerSendProposal, pending)

	// APPROVED is terminal

	return builder.Build(st(status))
}

// BuildTaskMachine creates a state machine configured for the task lifecycle
func BuildTaskMachine(status entity.TaskStatus) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder("task")

	to := func(s entity.TaskStatus) (domainwf.Trigger, domainwf.State) {
		return domainwf.TaskTrigger(s), st(s)
	}

	builder.Configure(st(entity.TaskStatusBacklog)).
		Permit(to(entity.TaskStatusInProgress)).
		Permit(to(entity.TaskStatusBlocked))

	builder.Configure(st(entity.TaskStatusInProgress)).
		Permit(to(entity.TaskStatusBlocked)).
		Permit(to(entity.TaskStatusReadyForReview))

	builder.Configure(st(entity.TaskStatusBlocked)).
		Permit(to(entity.TaskStatusInProgress))

	builder.Configure(st(entity.TaskStatusReadyForReview)).
		Permit(to(entity.TaskStatusInProgress)).
		Permit(to(entity.TaskStatusClientApproved))

	builder.Configure(st(entity.TaskStatusClientApproved)).
		Permit(to(entity.TaskStatusDone))

	return builder.Build(st(status))
}

// BuildInvoiceMachine creates a state machine configured for the invoice workflow
func BuildInvoiceMachine(state entity.InvoiceWorkflowState) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder("invoice")

	var (
		awaiting  = st(entity.InvoiceStateAwaitingValidation)
		ready     = st(entity.InvoiceStateReadyToSend)
		scheduled = st(entity.InvoiceStateScheduled)
		sent      = st(entity.InvoiceStateSentAndPendingPayment)
		paid      = st(entity.InvoiceStatePaidAndConfirmed)
	)

	builder.Configure(awaiting).
		Permit(domainwf.TriggerValidationPassed, ready).
		PermitReentry(domainwf.TriggerValidationFailed)

	builder.Configure(ready).
		PermitReentry(domainwf.TriggerValidationPassed).
		Permit(domainwf.TriggerValidationFailed, awaiting).
		Permit(domainwf.TriggerSchedule, scheduled).
		Permit(domainwf.TriggerSend, sent)

	builder.Configure(scheduled).
		PermitReentry(domainwf.TriggerSchedule).
		Permit(domainwf.TriggerSend, sent)

	builder.Configure(sent).
		Permit(domainwf.TriggerMarkPaid, paid)

	return builder.Build(st(state))
}
