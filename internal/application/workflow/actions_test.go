package workflow

import (
	"reflect"
	"testing"

	"github.com/garyjia/agency-ops/internal/domain/entity"
)

func TestIntakeActions(t *testing.T) {
	tests := []struct {
		status entity.IntakeStatus
		want   []string
	}{
		{entity.IntakeStatusReviewPending, []string{"approve_for_estimate", "archive", "assign_to_me", "return_for_info"}},
		{entity.IntakeStatusReturnedForInfo, []string{"approve_for_estimate", "archive", "assign_to_me", "resubmit", "return_for_info"}},
		{entity.IntakeStatusEstimateSent, []string{"archive"}},
		{entity.IntakeStatusArchived, []string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IntakeActions(tt.status); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IntakeActions(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestInvoiceActions(t *testing.T) {
	tests := []struct {
		state entity.InvoiceWorkflowState
		want  []string
	}{
		{entity.InvoiceStateAwaitingValidation, []string{"revalidate"}},
		{entity.InvoiceStateReadyToSend, []string{"schedule", "send", "revalidate"}},
		{entity.InvoiceStateScheduled, []string{"schedule", "send"}},
		{entity.InvoiceStateSentAndPendingPayment, []string{"pay"}},
		{entity.InvoiceStatePaidAndConfirmed, []string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := InvoiceActions(tt.state); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("InvoiceActions(%s) = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}
