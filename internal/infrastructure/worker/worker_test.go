package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockWorker struct {
	name      string
	log       *[]string
	startFunc func(ctx context.Context) error
	stopFunc  func() error
}

func (m *mockWorker) Start(ctx context.Context) error {
	*m.log = append(*m.log, "start:"+m.name)
	if m.startFunc != nil {
		return m.startFunc(ctx)
	}
	return nil
}

func (m *mockWorker) Stop() error {
	*m.log = append(*m.log, "stop:"+m.name)
	if m.stopFunc != nil {
		return m.stopFunc()
	}
	return nil
}

func (m *mockWorker) Name() string { return m.name }

func TestManager_StartStopOrder(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(&mockWorker{name: "a", log: &log}))
	require.NoError(t, m.Register(&mockWorker{name: "b", log: &log}))

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))
	assert.Error(t, m.Register(&mockWorker{name: "c", log: &log}))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.StopAll())

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)
	assert.Equal(t, 2, m.Count())
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(&mockWorker{name: "a", log: &log}))
	require.NoError(t, m.Register(&mockWorker{name: "b", log: &log, startFunc: func(ctx context.Context) error {
		return errors.New("port in use")
	}}))

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, log)
}

func TestManager_StopErrorsJoined(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	failing := func() error { return errors.New("stuck") }
	require.NoError(t, m.Register(&mockWorker{name: "a", log: &log, stopFunc: failing}))
	require.NoError(t, m.Register(&mockWorker{name: "b", log: &log, stopFunc: failing}))
	require.NoError(t, m.StartAll(context.Background()))

	err := m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop a")
	assert.Contains(t, err.Error(), "stop b")
	assert.False(t, m.IsRunning())
}

type mockProcessor struct {
	processScheduledFunc func(ctx context.Context, limit int) (int, error)
	markOverdueFunc      func(ctx context.Context, limit int) (int, error)
}

func (m *mockProcessor) ProcessScheduled(ctx context.Context, limit int) (int, error) {
	return m.processScheduledFunc(ctx, limit)
}

func (m *mockProcessor) MarkOverdue(ctx context.Context, limit int) (int, error) {
	return m.markOverdueFunc(ctx, limit)
}

func TestInvoiceStatusWorker_Tick(t *testing.T) {
	var limits []int
	p := &mockProcessor{
		processScheduledFunc: func(ctx context.Context, limit int) (int, error) {
			limits = append(limits, limit)
			return 2, nil
		},
		markOverdueFunc: func(ctx context.Context, limit int) (int, error) {
			limits = append(limits, limit)
			return 0, errors.New("database is locked")
		},
	}
	w := NewInvoiceStatusWorker(InvoiceStatusWorkerConfig{BatchSize: 7}, p, zap.NewNop())

	w.Tick(context.Background())

	sent, overdue, lastErr := w.Stats()
	assert.Equal(t, 2, sent)
	assert.Equal(t, 0, overdue)
	assert.EqualError(t, lastErr, "database is locked")
	assert.Equal(t, []int{7, 7}, limits)
}

func TestInvoiceStatusWorker_Polls(t *testing.T) {
	ticks := make(chan struct{}, 10)
	p := &mockProcessor{
		processScheduledFunc: func(ctx context.Context, limit int) (int, error) {
			select {
			case ticks <- struct{}{}:
			default:
			}
			return 0, nil
		},
		markOverdueFunc: func(ctx context.Context, limit int) (int, error) { return 0, nil },
	}
	w := NewInvoiceStatusWorker(InvoiceStatusWorkerConfig{PollInterval: 5 * time.Millisecond}, p, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("worker never polled")
	}
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
	assert.Equal(t, "InvoiceStatusWorker", w.Name())
}
