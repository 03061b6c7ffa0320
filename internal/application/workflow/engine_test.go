package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/garyjia/agency-ops/internal/application/dispatcher"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	domainwf "github.com/garyjia/agency-ops/internal/domain/workflow"
)

// Mock implementations

type mockActivityRepo struct {
	mu        sync.Mutex
	logs      []*entity.ActivityLog
	createErr error
}

func (m *mockActivityRepo) Create(ctx context.Context, log *entity.ActivityLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockActivityRepo) ListByEntity(ctx context.Context, e, entityID string, limit int) ([]*entity.ActivityLog, error) {
	return nil, nil
}

func (m *mockActivityRepo) ListByProject(ctx context.Context, projectID string, limit int) ([]*entity.ActivityLog, error) {
	return nil, nil
}

// mockTxManager discards the activity rows written by a failed unit
type mockTxManager struct {
	repo      *mockActivityRepo
	commitErr error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	before := len(m.repo.logs)
	err := fn(ctx)
	if err == nil {
		err = m.commitErr
	}
	if err != nil {
		m.repo.logs = m.repo.logs[:before]
	}
	return err
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

func newTestEngine(commitErr error) (Engine, *mockActivityRepo, *[]*event.Event) {
	repo := &mockActivityRepo{}
	bus := dispatcher.NewDispatcher()

	var mu sync.Mutex
	received := []*event.Event{}
	bus.Subscribe(func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, evt)
		return nil
	})

	rec := recorder.NewRecorder(repo, bus, noopLogger{})
	return NewEngine(&mockTxManager{repo: repo, commitErr: commitErr}, rec), repo, &received
}

func taskInput(status string) recorder.Input {
	return recorder.Input{
		Entity:   event.EntityTask,
		EntityID: "task-1",
		ActorID:  "dev-1",
		Status:   status,
	}
}

func TestEngineRunBroadcastsAfterCommit(t *testing.T) {
	engine, repo, received := newTestEngine(nil)

	events, err := engine.Run(context.Background(), func(ctx context.Context, unit *Unit) error {
		if _, err := unit.Record(ctx, taskInput("IN_PROGRESS")); err != nil {
			return err
		}
		if len(*received) != 0 {
			t.Error("expected no broadcast before commit")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if len(repo.logs) != 1 {
		t.Errorf("expected 1 persisted log, got %d", len(repo.logs))
	}
	if len(*received) != 1 || (*received)[0].ID != events[0].ID {
		t.Errorf("expected the recorded event to be broadcast once, got %d", len(*received))
	}
}

func TestEngineRunFailureBroadcastsNothing(t *testing.T) {
	engine, repo, received := newTestEngine(nil)
	boom := errors.New("update failed")

	_, err := engine.Run(context.Background(), func(ctx context.Context, unit *Unit) error {
		if _, err := unit.Record(ctx, taskInput("BLOCKED")); err != nil {
			return err
		}
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if len(repo.logs) != 0 {
		t.Errorf("expected rolled back logs, got %d", len(repo.logs))
	}
	if len(*received) != 0 {
		t.Errorf("expected no broadcast, got %d", len(*received))
	}
}

func TestEngineRunCommitFailureBroadcastsNothing(t *testing.T) {
	engine, _, received := newTestEngine(errors.New("commit failed"))

	_, err := engine.Run(context.Background(), func(ctx context.Context, unit *Unit) error {
		_, err := unit.Record(ctx, taskInput("DONE"))
		return err
	})

	if err == nil {
		t.Fatal("expected commit error")
	}
	if len(*received) != 0 {
		t.Errorf("expected no broadcast, got %d", len(*received))
	}
}

func TestFireTranslatesInvalidTransition(t *testing.T) {
	m, err := BuildTaskMachine(entity.TaskStatusBacklog)
	if err != nil {
		t.Fatalf("BuildTaskMachine() error = %v", err)
	}

	_, err = Fire(context.Background(), m, domainwf.TaskTrigger(entity.TaskStatusDone))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
	if m.State() != domainwf.State(entity.TaskStatusBacklog) {
		t.Errorf("expected state unchanged, got %s", m.State())
	}
}

func TestBuildIntakeMachine(t *testing.T) {
	tests := []struct {
		name      string
		initial   entity.IntakeStatus
		trigger   domainwf.Trigger
		wantState entity.IntakeStatus
		wantError bool
	}{
		{"assign keeps REVIEW_PENDING", entity.IntakeStatusReviewPending, domainwf.TriggerAssignToMe, entity.IntakeStatusReviewPending, false},
		{"assign keeps RETURNED_FOR_INFO", entity.IntakeStatusReturnedForInfo, domainwf.TriggerAssignToMe, entity.IntakeStatusReturnedForInfo, false},
		{"approve for estimate", entity.IntakeStatusReviewPending, domainwf.TriggerApproveForEstimate, entity.IntakeStatusApprovedForEstimate, false},
		{"return for info", entity.IntakeStatusReviewPending, domainwf.TriggerReturnForInfo, entity.IntakeStatusReturnedForInfo, false},
		{"resubmit", entity.IntakeStatusReturnedForInfo, domainwf.TriggerResubmit, entity.IntakeStatusReviewPending, false},
		{"estimate started from review", entity.IntakeStatusReviewPending, domainwf.TriggerStartEstimate, entity.IntakeStatusEstimateInProgress, false},
		{"estimate sent", entity.IntakeStatusEstimateInProgress, domainwf.TriggerSendEstimate, entity.IntakeStatusEstimateSent, false},
		{"scope approved", entity.IntakeStatusEstimateSent, domainwf.TriggerScopeApproved, entity.IntakeStatusClientScopeApproved, false},
		{"scope declined", entity.IntakeStatusEstimateInProgress, domainwf.TriggerScopeDeclined, entity.IntakeStatusClientScopeDeclined, false},
		{"archive", entity.IntakeStatusClientScopeApproved, domainwf.TriggerArchive, entity.IntakeStatusArchived, false},
		{"archived is terminal", entity.IntakeStatusArchived, domainwf.TriggerAssignToMe, "", true},
		{"cannot resubmit while pending", entity.IntakeStatusReviewPending, domainwf.TriggerResubmit, "", true},
		{"cannot approve after estimate sent", entity.IntakeStatusEstimateSent, domainwf.TriggerApproveForEstimate, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := BuildIntakeMachine(tt.initial)
			if err != nil {
				t.Fatalf("BuildIntakeMachine() error = %v", err)
			}

			_, err = m.Fire(context.Background(), tt.trigger)
			if tt.wantError {
				if !errors.Is(err, domainwf.ErrInvalidTransition) {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fire() error = %v", err)
			}
			if m.State() != domainwf.State(tt.wantState) {
				t.Errorf("State() = %s, want %s", m.State(), tt.wantState)
			}
		})
	}
}

func TestBuildProposalMachine(t *testing.T) {
	tests := []struct {
		name      string
		initial   entity.ProposalStatus
		trigger   domainwf.Trigger
		wantState entity.ProposalStatus
		wantError bool
	}{
		{"send draft", entity.ProposalStatusDraft, domainwf.TriggerSendProposal, entity.ProposalStatusClientApprovalPending, false},
		{"client declines draft", entity.ProposalStatusDraft, domainwf.TriggerClientDecline, entity.ProposalStatusDeclined, false},
		{"client approves sent", entity.ProposalStatusClientApprovalPending, domainwf.TriggerClientApprove, entity.ProposalStatusApproved, false},
		{"revise sent", entity.ProposalStatusClientApprovalPending, domainwf.TriggerReviseProposal, entity.ProposalStatusDraft, false},
		{"revise declined", entity.ProposalStatusDeclined, domainwf.TriggerReviseProposal, entity.ProposalStatusDraft, false},
		{"approved is terminal", entity.ProposalStatusApproved, domainwf.TriggerReviseProposal, "", true},
		{"declined cannot be approved", entity.ProposalStatusDeclined, domainwf.TriggerClientApprove, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := BuildProposalMachine(tt.initial)
			if err != nil {
				t.Fatalf("BuildProposalMachine() error = %v", err)
			}

			_, err = m.Fire(context.Background(), tt.trigger)
			if (err != nil) != tt.wantError {
				t.Fatalf("Fire() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && m.State() != domainwf.State(tt.wantState) {
				t.Errorf("State() = %s, want %s", m.State(), tt.wantState)
			}
		})
	}
}

func TestBuildTaskMachine(t *testing.T) {
	allowed := map[entity.TaskStatus][]entity.TaskStatus{
		entity.TaskStatusBacklog:        {entity.TaskStatusInProgress, entity.TaskStatusBlocked},
		entity.TaskStatusInProgress:     {entity.TaskStatusBlocked, entity.TaskStatusReadyForReview},
		entity.TaskStatusBlocked:        {entity.TaskStatusInProgress},
		entity.TaskStatusReadyForReview: {entity.TaskStatusInProgress, entity.TaskStatusClientApproved},
		entity.TaskStatusClientApproved: {entity.TaskStatusDone},
		entity.TaskStatusDone:           {},
	}

	for from, targets := range allowed {
		m, err := BuildTaskMachine(from)
		if err != nil {
			t.Fatalf("BuildTaskMachine(%s) error = %v", from, err)
		}

		permitted := m.PermittedTriggers()
		if len(permitted) != len(targets) {
			t.Errorf("%s: expected %d triggers, got %v", from, len(targets), permitted)
		}
		for _, to := range targets {
			if !m.CanFire(domainwf.TaskTrigger(to)) {
				t.Errorf("%s: expected move to %s to be permitted", from, to)
			}
		}
	}
}

func TestBuildInvoiceMachine(t *testing.T) {
	m, err := BuildInvoiceMachine(entity.InvoiceStateAwaitingValidation)
	if err != nil {
		t.Fatalf("BuildInvoiceMachine() error = %v", err)
	}

	steps := []struct {
		trigger domainwf.Trigger
		want    entity.InvoiceWorkflowState
	}{
		{domainwf.TriggerValidationFailed, entity.InvoiceStateAwaitingValidation},
		{domainwf.TriggerValidationPassed, entity.InvoiceStateReadyToSend},
		{domainwf.TriggerSchedule, entity.InvoiceStateScheduled},
		{domainwf.TriggerSend, entity.InvoiceStateSentAndPendingPayment},
		{domainwf.TriggerMarkPaid, entity.InvoiceStatePaidAndConfirmed},
	}

	for _, step := range steps {
		if _, err := m.Fire(context.Background(), step.trigger); err != nil {
			t.Fatalf("Fire(%s) error = %v", step.trigger, err)
		}
		if m.State() != domainwf.State(step.want) {
			t.Fatalf("after %s: State() = %s, want %s", step.trigger, m.State(), step.want)
		}
	}

	if m.CanFire(domainwf.TriggerSend) {
		t.Error("expected paid invoice to be terminal")
	}

	if _, err := BuildInvoiceMachine("BOGUS"); !errors.Is(err, domainwf.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
