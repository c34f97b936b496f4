package alert

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// mockSink implements domain.AlertSink for testing
type mockSink struct {
	mu         sync.Mutex
	dead       bool
	publishErr error
	events     []domain.DetectionEvent
}

func (m *mockSink) Publish(event domain.DetectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockSink) Live() bool { return !m.dead }

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// mockPrompt implements domain.WarningPrompt for testing
type mockPrompt struct {
	answer    domain.Resolution
	err       error
	release   chan struct{}
	calls     atomic.Int32
	refreshes atomic.Int32
}

func (m *mockPrompt) Refresh(processes []domain.ProcessRecord) {
	m.refreshes.Add(1)
}

func (m *mockPrompt) Warn(ctx context.Context, processes []domain.ProcessRecord) (domain.Resolution, error) {
	m.calls.Add(1)
	if m.release != nil {
		<-m.release
	}
	return m.answer, m.err
}

func detected() domain.DetectionResult {
	return domain.NewDetectionResult([]domain.ProcessRecord{{Name: "obs64.exe", PID: 4321, Command: "obs64.exe"}})
}

func TestDispatcher_IgnoresNegativeResults(t *testing.T) {
	sink := &mockSink{}
	prompt := &mockPrompt{answer: domain.ResolutionContinue}
	d := NewDispatcher(prompt, nil, zap.NewNop(), sink)
	called := false
	d.OnRecordingDetected(func(domain.DetectionEvent) { called = true })

	d.Handle(context.Background(), domain.NewDetectionResult(nil))
	d.Wait()

	assert.False(t, called)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, int32(0), prompt.calls.Load())
}

func TestDispatcher_ForwardsToListenersAndSinks(t *testing.T) {
	sink := &mockSink{}
	d := NewDispatcher(nil, nil, zap.NewNop(), sink)

	var got1, got2 []domain.DetectionEvent
	d.OnRecordingDetected(func(e domain.DetectionEvent) { got1 = append(got1, e) })
	d.OnRecordingDetected(func(e domain.DetectionEvent) { got2 = append(got2, e) })

	result := detected()
	d.Handle(context.Background(), result)
	d.Handle(context.Background(), result)

	require.Len(t, got1, 2, "every positive tick re-alerts")
	require.Len(t, got2, 2)
	assert.True(t, got1[0].Detected)
	assert.Equal(t, result.Processes, got1[0].Processes)
	assert.Equal(t, result.Timestamp, got1[0].Timestamp)
	assert.Equal(t, 2, sink.count())
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher(nil, nil, zap.NewNop())

	var a, b int
	unsubA := d.OnRecordingDetected(func(domain.DetectionEvent) { a++ })
	d.OnRecordingDetected(func(domain.DetectionEvent) { b++ })

	d.Handle(context.Background(), detected())
	unsubA()
	unsubA()
	d.Handle(context.Background(), detected())

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestDispatcher_NoReplayForLateSubscribers(t *testing.T) {
	d := NewDispatcher(nil, nil, zap.NewNop())
	d.Handle(context.Background(), detected())

	late := 0
	d.OnRecordingDetected(func(domain.DetectionEvent) { late++ })

	assert.Equal(t, 0, late)
}

func TestDispatcher_SkipsDeadSinksAndSurvivesErrors(t *testing.T) {
	dead := &mockSink{dead: true}
	failing := &mockSink{publishErr: errors.New("connection reset")}
	live := &mockSink{}
	d := NewDispatcher(nil, nil, zap.NewNop(), dead, failing)
	d.AddSink(live)
	d.OnRecordingDetected(func(domain.DetectionEvent) { panic("listener bug") })

	assert.NotPanics(t, func() { d.Handle(context.Background(), detected()) })

	assert.Equal(t, 0, dead.count())
	assert.Equal(t, 1, live.count())
}

func TestDispatcher_PromptResolution(t *testing.T) {
	tests := []struct {
		name          string
		answer        domain.Resolution
		err           error
		wantTerminate bool
	}{
		{name: "continue", answer: domain.ResolutionContinue},
		{name: "terminate", answer: domain.ResolutionTerminate, wantTerminate: true},
		{name: "prompt error", answer: domain.ResolutionTerminate, err: errors.New("no tty")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := &mockPrompt{answer: tt.answer, err: tt.err}
			terminated := false
			d := NewDispatcher(prompt, func() { terminated = true }, zap.NewNop())

			d.Handle(context.Background(), detected())
			d.Wait()

			assert.Equal(t, int32(1), prompt.calls.Load())
			assert.Equal(t, tt.wantTerminate, terminated)
		})
	}
}

func TestDispatcher_DoesNotStackPrompts(t *testing.T) {
	prompt := &mockPrompt{answer: domain.ResolutionContinue, release: make(chan struct{})}
	sink := &mockSink{}
	d := NewDispatcher(prompt, nil, zap.NewNop(), sink)

	d.Handle(context.Background(), detected())
	require.Eventually(t, func() bool { return prompt.calls.Load() == 1 }, time.Second, time.Millisecond)

	d.Handle(context.Background(), detected())
	d.Handle(context.Background(), detected())

	assert.Equal(t, int32(1), prompt.calls.Load(), "only one warning open at a time")
	assert.Equal(t, 3, sink.count(), "events still reach the display layer")
	assert.Equal(t, int32(2), prompt.refreshes.Load(), "later ticks re-alert through the open warning")

	close(prompt.release)
	d.Wait()

	d.Handle(context.Background(), detected())
	d.Wait()
	assert.Equal(t, int32(2), prompt.calls.Load(), "a new warning opens after the previous one closes")
}

func TestDispatcher_CloseDropsLaterResults(t *testing.T) {
	prompt := &mockPrompt{answer: domain.ResolutionContinue}
	sink := &mockSink{}
	d := NewDispatcher(prompt, nil, zap.NewNop(), sink)
	heard := 0
	d.OnRecordingDetected(func(domain.DetectionEvent) { heard++ })

	d.Close()
	d.Handle(context.Background(), detected())
	d.Close()

	assert.Equal(t, 0, heard)
	assert.Equal(t, 0, sink.count())
	assert.Equal(t, int32(0), prompt.calls.Load())
}

func TestDispatcher_CloseWaitsForOpenPrompt(t *testing.T) {
	prompt := &mockPrompt{answer: domain.ResolutionContinue, release: make(chan struct{})}
	d := NewDispatcher(prompt, nil, zap.NewNop())

	d.Handle(context.Background(), detected())
	require.Eventually(t, func() bool { return prompt.calls.Load() == 1 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while the warning was still open")
	case <-time.After(50 * time.Millisecond):
	}

	close(prompt.release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the warning resolved")
	}
}

func TestDispatcher_CloseRacesWithHandle(t *testing.T) {
	prompt := &mockPrompt{answer: domain.ResolutionContinue}
	d := NewDispatcher(prompt, nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Handle(context.Background(), detected())
			}
		}()
	}

	d.Close()
	after := prompt.calls.Load()
	wg.Wait()

	assert.Equal(t, after, prompt.calls.Load(), "no warning may open once Close has returned")
}

// plainPrompt has no Refresh method.
type plainPrompt struct {
	release chan struct{}
	calls   atomic.Int32
}

func (p *plainPrompt) Warn(ctx context.Context, processes []domain.ProcessRecord) (domain.Resolution, error) {
	p.calls.Add(1)
	<-p.release
	return domain.ResolutionContinue, nil
}

func TestDispatcher_PromptWithoutRefresh(t *testing.T) {
	prompt := &plainPrompt{release: make(chan struct{})}
	d := NewDispatcher(prompt, nil, zap.NewNop())

	d.Handle(context.Background(), detected())
	require.Eventually(t, func() bool { return prompt.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.NotPanics(t, func() { d.Handle(context.Background(), detected()) })

	close(prompt.release)
	d.Close()
	assert.Equal(t, int32(1), prompt.calls.Load())
}
