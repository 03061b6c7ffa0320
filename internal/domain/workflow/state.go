package workflow

import "github.com/garyjia/agency-ops/internal/domain/entity"

// State is a status value of one of the workflow-governed entities
type State string

var validStates = map[State]bool{}

var terminalStates = map[State]bool{
	State(entity.IntakeStatusArchived):         true,
	State(entity.ProposalStatusApproved):       true,
	State(entity.TaskStatusDone):               true,
	State(entity.InvoiceStatePaidAndConfirmed): true,
}

func init() {
	for _, s := range []entity.IntakeStatus{
		entity.IntakeStatusReviewPending,
		entity.IntakeStatusAssigned,
		entity.IntakeStatusApprovedForEstimate,
		entity.IntakeStatusReturnedForInfo,
		entity.IntakeStatusEstimateInProgress,
		entity.IntakeStatusEstimateSent,
		entity.IntakeStatusClientScopeApproved,
		entity.IntakeStatusClientScopeDeclined,
		entity.IntakeStatusArchived,
	} {
		validStates[State(s)] = true
	}

	for _, s := range []entity.ProposalStatus{
		entity.ProposalStatusDraft,
		entity.ProposalStatusClientApprovalPending,
		entity.ProposalStatusApproved,
		entity.ProposalStatusDeclined,
	} {
		validStates[State(s)] = true
	}

	for _, s := range []entity.TaskStatus{
		entity.TaskStatusBacklog,
		entity.TaskStatusInProgress,
		entity.TaskStatusBlocked,
		entity.TaskStatusReadyForReview,
		entity.TaskStatusClientApproved,
		entity.TaskStatusDone,
	} {
		validStates[State(s)] = true
	}

	for _, s := range []entity.InvoiceWorkflowState{
		entity.InvoiceStateAwaitingValidation,
		entity.InvoiceStateReadyToSend,
		entity.InvoiceStateScheduled,
		entity.InvoiceStateSentAndPendingPayment,
		entity.InvoiceStatePaidAndConfirmed,
	} {
		validStates[State(s)] = true
	}
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state belongs to one of the known lifecycles
func (s State) IsValid() bool {
	return validStates[s]
}
