package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InvoiceProcessor is the part of the invoice service the worker drives
type InvoiceProcessor interface {
	ProcessScheduled(ctx context.Context, limit int) (int, error)
	MarkOverdue(ctx context.Context, limit int) (int, error)
}

// InvoiceStatusWorkerConfig holds configuration for the invoice status worker
type InvoiceStatusWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Timeout      time.Duration
}

// DefaultInvoiceStatusWorkerConfig returns default configuration
func DefaultInvoiceStatusWorkerConfig() InvoiceStatusWorkerConfig {
	return InvoiceStatusWorkerConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
		Timeout:      30 * time.Second,
	}
}

// InvoiceStatusWorker sends scheduled invoices once due and flags sent
// invoices as overdue
type InvoiceStatusWorker struct {
	config    InvoiceStatusWorkerConfig
	processor InvoiceProcessor
	logger    *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	sent      int
	overdue   int
	lastError error
}

// NewInvoiceStatusWorker creates a new invoice status worker
func NewInvoiceStatusWorker(config InvoiceStatusWorkerConfig, processor InvoiceProcessor, logger *zap.Logger) *InvoiceStatusWorker {
	defaults := DefaultInvoiceStatusWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &InvoiceStatusWorker{config: config, processor: processor, logger: logger}
}

// Start begins the polling loop
func (w *InvoiceStatusWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("invoice status worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("InvoiceStatusWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop terminates the loop and waits for an in-flight tick to finish
func (w *InvoiceStatusWorker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	sent, overdue, _ := w.Stats()
	w.logger.Info("InvoiceStatusWorker stopped", zap.Int("sent", sent), zap.Int("overdue", overdue))
	return nil
}

// Name returns the worker name for identification
func (w *InvoiceStatusWorker) Name() string {
	return "InvoiceStatusWorker"
}

// Stats returns totals since construction and the last tick error
func (w *InvoiceStatusWorker) Stats() (sent, overdue int, lastErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent, w.overdue, w.lastError
}

func (w *InvoiceStatusWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one pass: scheduled sends first, then overdue marking
func (w *InvoiceStatusWorker) Tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	sent, sendErr := w.processor.ProcessScheduled(tickCtx, w.config.BatchSize)
	if sendErr != nil {
		w.logger.Error("Failed to process scheduled invoices", zap.Error(sendErr))
	}

	overdue, overdueErr := w.processor.MarkOverdue(tickCtx, w.config.BatchSize)
	if overdueErr != nil {
		w.logger.Error("Failed to mark overdue invoices", zap.Error(overdueErr))
	}

	if sent > 0 || overdue > 0 {
		w.logger.Info("Invoice statuses advanced", zap.Int("sent", sent), zap.Int("overdue", overdue))
	}

	w.mu.Lock()
	w.sent += sent
	w.overdue += overdue
	w.lastError = sendErr
	if overdueErr != nil {
		w.lastError = overdueErr
	}
	w.mu.Unlock()
}
