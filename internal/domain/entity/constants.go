package entity

// IntakeStatus is the lifecycle status of a client intake
type IntakeStatus string

const (
	IntakeStatusReviewPending       IntakeStatus = "REVIEW_PENDING"
	IntakeStatusAssigned            IntakeStatus = "ASSIGNED"
	IntakeStatusApprovedForEstimate IntakeStatus = "APPROVED_FOR_ESTIMATE"
	IntakeStatusReturnedForInfo     IntakeStatus = "RETURNED_FOR_INFO"
	IntakeStatusEstimateInProgress  IntakeStatus = "ESTIMATE_IN_PROGRESS"
	IntakeStatusEstimateSent        IntakeStatus = "ESTIMATE_SENT"
	IntakeStatusClientScopeApproved IntakeStatus = "CLIENT_SCOPE_APPROVED"
	IntakeStatusClientScopeDeclined IntakeStatus = "CLIENT_SCOPE_DECLINED"
	IntakeStatusArchived            IntakeStatus = "ARCHIVED"
)

// ProposalStatus is the lifecycle status of a project proposal.
// CLIENT_APPROVAL_PENDING is what the client sees as "sent".
type ProposalStatus string

const (
	ProposalStatusDraft                 ProposalStatus = "DRAFT"
	ProposalStatusClientApprovalPending ProposalStatus = "CLIENT_APPROVAL_PENDING"
	ProposalStatusApproved              ProposalStatus = "APPROVED"
	ProposalStatusDeclined              ProposalStatus = "DECLINED"
)

// ProjectStatus is the coarse delivery status of a project
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "PLANNING"
	ProjectStatusActive    ProjectStatus = "ACTIVE"
	ProjectStatusOnHold    ProjectStatus = "ON_HOLD"
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
	ProjectStatusCancelled ProjectStatus = "CANCELLED"
)

// WorkflowPhase is a project-level stage, distinct from intake/task/invoice status
type WorkflowPhase string

const (
	WorkflowPhaseIntake     WorkflowPhase = "INTAKE"
	WorkflowPhaseEstimation WorkflowPhase = "ESTIMATION"
	WorkflowPhaseKickoff    WorkflowPhase = "KICKOFF"
	WorkflowPhaseDelivery   WorkflowPhase = "DELIVERY"
	WorkflowPhaseBilling    WorkflowPhase = "BILLING"
	WorkflowPhaseClosed     WorkflowPhase = "CLOSED"
)

// TaskStatus is the status of a unit of work
type TaskStatus string

const (
	TaskStatusBacklog        TaskStatus = "BACKLOG"
	TaskStatusInProgress     TaskStatus = "IN_PROGRESS"
	TaskStatusBlocked        TaskStatus = "BLOCKED"
	TaskStatusReadyForReview TaskStatus = "READY_FOR_REVIEW"
	TaskStatusClientApproved TaskStatus = "CLIENT_APPROVED"
	TaskStatusDone           TaskStatus = "DONE"
)

// TaskPriority ranks tasks for planning
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

// FileApprovalStatus is the client approval state of an uploaded file
type FileApprovalStatus string

const (
	FileApprovalPending          FileApprovalStatus = "PENDING"
	FileApprovalApproved         FileApprovalStatus = "APPROVED"
	FileApprovalChangesRequested FileApprovalStatus = "CHANGES_REQUESTED"
	FileApprovalRejected         FileApprovalStatus = "REJECTED"
)

// ChecklistStatus is the status of a file review checklist item
type ChecklistStatus string

const (
	ChecklistStatusPending  ChecklistStatus = "PENDING"
	ChecklistStatusInReview ChecklistStatus = "IN_REVIEW"
	ChecklistStatusComplete ChecklistStatus = "COMPLETE"
	ChecklistStatusDeferred ChecklistStatus = "DEFERRED"
)

// InvoiceStatus is the payment-facing status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "DRAFT"
	InvoiceStatusSent    InvoiceStatus = "SENT"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
)

// InvoiceWorkflowState is the internal billing workflow state of an invoice
type InvoiceWorkflowState string

const (
	InvoiceStateAwaitingValidation    InvoiceWorkflowState = "AWAITING_VALIDATION"
	InvoiceStateReadyToSend           InvoiceWorkflowState = "READY_TO_SEND"
	InvoiceStateScheduled             InvoiceWorkflowState = "SCHEDULED"
	InvoiceStateSentAndPendingPayment InvoiceWorkflowState = "SENT_AND_PENDING_PAYMENT"
	InvoiceStatePaidAndConfirmed      InvoiceWorkflowState = "PAID_AND_CONFIRMED"
)

// Status-history contexts
const (
	HistoryContextStatusChange     = "status_change"
	HistoryContextBillingDeferment = "billing_deferment"
)

// SystemActorID is recorded as the actor of background transitions
const SystemActorID = "system"

var validTaskStatuses = map[TaskStatus]bool{
	TaskStatusBacklog:        true,
	TaskStatusInProgress:     true,
	TaskStatusBlocked:        true,
	TaskStatusReadyForReview: true,
	TaskStatusClientApproved: true,
	TaskStatusDone:           true,
}

// IsValid reports whether s is a known task status
func (s TaskStatus) IsValid() bool {
	return validTaskStatuses[s]
}

// IsValid reports whether s is a known intake status
func (s IntakeStatus) IsValid() bool {
	switch s {
	case IntakeStatusReviewPending, IntakeStatusAssigned, IntakeStatusApprovedForEstimate,
		IntakeStatusReturnedForInfo, IntakeStatusEstimateInProgress, IntakeStatusEstimateSent,
		IntakeStatusClientScopeApproved, IntakeStatusClientScopeDeclined, IntakeStatusArchived:
		return true
	}
	return false
}

// IsValid reports whether p is a known priority
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// IsValid reports whether s is a known checklist status
func (s ChecklistStatus) IsValid() bool {
	switch s {
	case ChecklistStatusPending, ChecklistStatusInReview, ChecklistStatusComplete, ChecklistStatusDeferred:
		return true
	}
	return false
}

// IsBlocking reports whether the checklist item still holds up billing
func (s ChecklistStatus) IsBlocking() bool {
	return s == ChecklistStatusPending || s == ChecklistStatusInReview
}

// IsReviewOutcome reports whether s is a status a reviewer can set on a file
func (s FileApprovalStatus) IsReviewOutcome() bool {
	switch s {
	case FileApprovalApproved, FileApprovalChangesRequested, FileApprovalRejected:
		return true
	}
	return false
}
