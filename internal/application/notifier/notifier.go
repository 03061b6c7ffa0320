package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
)

const defaultBufferSize = 32

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// notable lists the workflow events forwarded to the team chat
var notable = map[event.Type]bool{
	event.NewType(event.EntityProposal, string(entity.ProposalStatusApproved)):    true,
	event.NewType(event.EntityProposal, string(entity.ProposalStatusDeclined)):    true,
	event.NewType(event.EntityIntake, string(entity.IntakeStatusReturnedForInfo)): true,
	event.NewType(event.EntityInvoice, event.StatusDraftCreated):                  true,
	event.NewType(event.EntityInvoice, string(entity.InvoiceStatusOverdue)):       true,
}

// IsNotable reports whether evt is forwarded to the chat
func IsNotable(evt *event.Event) bool {
	return evt != nil && notable[evt.Type]
}

// Notifier forwards selected workflow events to a chat. Handle only queues;
// a background loop does the sending so publishers never wait on the network.
type Notifier struct {
	sender port.MessageSender
	chatID string
	logger Logger
	queue  chan *event.Event

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewNotifier creates a notifier posting to chatID
func NewNotifier(sender port.MessageSender, chatID string, bufferSize int, logger Logger) *Notifier {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Notifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
		queue:  make(chan *event.Event, bufferSize),
	}
}

// Handle is the event bus subscriber. A full queue drops the event.
func (n *Notifier) Handle(_ context.Context, evt *event.Event) error {
	if !IsNotable(evt) {
		return nil
	}

	select {
	case n.queue <- evt:
	default:
		n.logger.Error("Notification queue full, dropping event", "event_type", evt.Type.String(), "entity_id", evt.EntityID)
	}
	return nil
}

// Start runs the send loop until ctx is cancelled or Stop is called
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return fmt.Errorf("notifier already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true

	go n.loop(loopCtx, n.done)
	return nil
}

// Stop ends the send loop; queued events not yet sent are dropped
func (n *Notifier) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	cancel, done := n.cancel, n.done
	n.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Name returns the worker name for identification
func (n *Notifier) Name() string {
	return "ChatNotifier"
}

func (n *Notifier) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-n.queue:
			if err := n.sender.SendText(ctx, n.chatID, Format(evt)); err != nil {
				n.logger.Error("Failed to send notification", "event_type", evt.Type.String(), "error", err)
				continue
			}
			n.logger.Info("Notification sent", "event_type", evt.Type.String(), "entity_id", evt.EntityID)
		}
	}
}

// Format renders evt as a one-line chat message
func Format(evt *event.Event) string {
	var b strings.Builder

	switch evt.Type {
	case event.NewType(event.EntityProposal, string(entity.ProposalStatusApproved)):
		b.WriteString("Proposal approved by client")
	case event.NewType(event.EntityProposal, string(entity.ProposalStatusDeclined)):
		b.WriteString("Proposal declined by client")
	case event.NewType(event.EntityIntake, string(entity.IntakeStatusReturnedForInfo)):
		b.WriteString("Intake returned for more information")
	case event.NewType(event.EntityInvoice, event.StatusDraftCreated):
		fmt.Fprintf(&b, "Draft invoice %s created", evt.GetMetadataString("invoiceNumber"))
		writeAmount(&b, evt)
		if evt.GetMetadataBool("forced") {
			b.WriteString(" despite failed readiness checks")
		}
	case event.NewType(event.EntityInvoice, string(entity.InvoiceStatusOverdue)):
		fmt.Fprintf(&b, "Invoice %s is overdue", evt.GetMetadataString("invoiceNumber"))
		writeAmount(&b, evt)
	default:
		b.WriteString(evt.Type.String())
	}

	if evt.ProjectID != "" {
		fmt.Fprintf(&b, " (project %s)", evt.ProjectID)
	}
	if evt.Message != "" {
		fmt.Fprintf(&b, ": %s", evt.Message)
	}
	return b.String()
}

func writeAmount(b *strings.Builder, evt *event.Event) {
	if amount := evt.GetMetadataFloat("amount"); amount > 0 {
		fmt.Fprintf(b, " for %.2f", amount)
	}
}
