package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fetcherMock struct {
	mock.Mock
}

func (m *fetcherMock) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*models.Delivery)
	return d, args.Error(1)
}

type fakeSink struct {
	mu      sync.Mutex
	updates []*models.DeliveryUpdate
	states  []models.ConnectionState
}

func (s *fakeSink) ApplyUpdate(u *models.DeliveryUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *fakeSink) SetConnection(st models.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *fakeSink) snapshot() ([]*models.DeliveryUpdate, []models.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.DeliveryUpdate(nil), s.updates...), append([]models.ConnectionState(nil), s.states...)
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(n int)
}

// waitTimers blocks until exactly n timers are armed on fc.
func waitTimers(t *testing.T, fc fakeClock, n int) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fc.BlockUntil(n)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timers: want %d armed", n)
	}
}

type harness struct {
	p    *Poller
	fc   fakeClock
	sink *fakeSink
	f    *fetcherMock
	stop func() error
}

func startPoller(t *testing.T, configure func(p *Poller)) *harness {
	t.Helper()
	h := &harness{
		fc:   clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		sink: &fakeSink{},
		f:    &fetcherMock{},
	}
	h.p = New(h.f, h.sink, h.fc)
	if configure != nil {
		configure(h.p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.p.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, states := h.sink.snapshot()
		return len(states) > 0
	}, time.Second, time.Millisecond)

	var once sync.Once
	var stopErr error
	h.stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case stopErr = <-errCh:
			case <-time.After(time.Second):
				stopErr = errors.New("poller did not stop")
			}
		})
		return stopErr
	}
	t.Cleanup(func() { _ = h.stop() })
	return h
}

func (h *harness) waitUpdates(t *testing.T, n int) []*models.DeliveryUpdate {
	t.Helper()
	var updates []*models.DeliveryUpdate
	require.Eventually(t, func() bool {
		updates, _ = h.sink.snapshot()
		return len(updates) == n
	}, time.Second, time.Millisecond)
	return updates
}

func (h *harness) waitStat(t *testing.T, get func(Stats) int64, want int64) {
	t.Helper()
	require.Eventually(t, func() bool { return get(h.p.Stats()) == want }, time.Second, time.Millisecond)
}

func totalErrors(st Stats) int64 { return st.TotalErrors }

func TestPoller_NoTimerWithoutSelection(t *testing.T) {
	h := startPoller(t, nil)

	_, states := h.sink.snapshot()
	require.Equal(t, []models.ConnectionState{{Mode: models.ModePolling}}, states)
	waitTimers(t, h.fc, 0)

	h.fc.Advance(time.Minute)
	h.f.AssertNotCalled(t, "GetDelivery", mock.Anything, mock.Anything)
}

func TestPoller_BackoffOnFailureResetOnSuccess(t *testing.T) {
	h := startPoller(t, nil)
	boom := errors.New("connection refused")
	h.f.On("GetDelivery", mock.Anything, "A").Return(nil, boom).Times(3)
	h.f.On("GetDelivery", mock.Anything, "A").Return(&models.Delivery{ID: "A", Status: models.StatusDelivered}, nil).Once()

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	require.Equal(t, 2500*time.Millisecond, h.p.Interval())

	var intervals []time.Duration
	for i := int64(1); i <= 3; i++ {
		h.fc.Advance(h.p.Interval())
		h.waitStat(t, totalErrors, i)
		waitTimers(t, h.fc, 1)
		intervals = append(intervals, h.p.Interval())
	}
	require.Equal(t, []time.Duration{4000 * time.Millisecond, 6400 * time.Millisecond, 10240 * time.Millisecond}, intervals)

	updates, _ := h.sink.snapshot()
	require.Empty(t, updates)
	require.Equal(t, "connection refused", h.p.Stats().LastError)

	h.fc.Advance(10240 * time.Millisecond)
	updates = h.waitUpdates(t, 1)
	require.Equal(t, "A", updates[0].ID)
	require.Equal(t, 2500*time.Millisecond, h.p.Interval())
	waitTimers(t, h.fc, 1)

	require.Eventually(t, func() bool {
		_, states := h.sink.snapshot()
		return states[len(states)-1] == models.ConnectionState{Mode: models.ModePolling, Connected: true}
	}, time.Second, time.Millisecond)
	h.f.AssertExpectations(t)
}

func TestPoller_SwitchingSelectionKeepsBackoff(t *testing.T) {
	h := startPoller(t, nil)
	h.f.On("GetDelivery", mock.Anything, "A").Return(nil, errors.New("timeout")).Once()
	h.f.On("GetDelivery", mock.Anything, "B").Return(&models.Delivery{ID: "B"}, nil).Once()

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	h.fc.Advance(2500 * time.Millisecond)
	h.waitStat(t, totalErrors, 1)
	waitTimers(t, h.fc, 1)
	require.Equal(t, 4000*time.Millisecond, h.p.Interval())

	h.p.Select("B")
	waitTimers(t, h.fc, 1)
	require.Equal(t, 4000*time.Millisecond, h.p.Interval())

	h.fc.Advance(4000 * time.Millisecond)
	updates := h.waitUpdates(t, 1)
	require.Equal(t, "B", updates[0].ID)
	h.f.AssertExpectations(t)
}

func TestPoller_StaleResultIsDiscarded(t *testing.T) {
	h := startPoller(t, nil)
	h.f.On("GetDelivery", mock.Anything, "A").
		Run(func(mock.Arguments) { h.p.Select("B") }).
		Return(&models.Delivery{ID: "A"}, nil).Once()

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	h.fc.Advance(2500 * time.Millisecond)
	h.waitStat(t, func(st Stats) int64 { return st.TotalStale }, 1)

	updates, _ := h.sink.snapshot()
	require.Empty(t, updates)
	require.Equal(t, "B", h.p.Stats().Selected)
	waitTimers(t, h.fc, 1)
	require.Equal(t, 2500*time.Millisecond, h.p.Interval())
}

func TestPoller_TriggerDuringTickKeepsNewestResult(t *testing.T) {
	h := startPoller(t, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	h.f.On("GetDelivery", mock.Anything, "A").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(&models.Delivery{ID: "A", Status: models.StatusInTransit}, nil).Once()
	h.f.On("GetDelivery", mock.Anything, "A").
		Return(&models.Delivery{ID: "A", Status: models.StatusDelivered}, nil).Once()

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	h.fc.Advance(2500 * time.Millisecond)
	<-started

	h.p.Trigger()
	updates := h.waitUpdates(t, 1)
	require.Equal(t, string(models.StatusDelivered), *updates[0].Status)

	close(release)
	h.waitStat(t, func(st Stats) int64 { return st.TotalStale }, 1)

	updates, _ = h.sink.snapshot()
	require.Len(t, updates, 1)
	require.Equal(t, string(models.StatusDelivered), *updates[0].Status)
	h.f.AssertExpectations(t)
}

func TestPoller_NotFoundIsNotAFailure(t *testing.T) {
	h := startPoller(t, nil)
	h.f.On("GetDelivery", mock.Anything, "A").Return(nil, errors.New("503")).Once()
	h.f.On("GetDelivery", mock.Anything, "A").Return(nil, nil).Once()

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	h.fc.Advance(2500 * time.Millisecond)
	h.waitStat(t, totalErrors, 1)
	waitTimers(t, h.fc, 1)
	h.fc.Advance(4000 * time.Millisecond)

	require.Eventually(t, func() bool {
		_, states := h.sink.snapshot()
		return states[len(states)-1].Connected
	}, time.Second, time.Millisecond)
	updates, _ := h.sink.snapshot()
	require.Empty(t, updates)
	require.Equal(t, 2500*time.Millisecond, h.p.Interval())
}

func TestPoller_DeselectStopsPolling(t *testing.T) {
	h := startPoller(t, nil)
	h.p.Select("A")
	waitTimers(t, h.fc, 1)

	h.p.Select("")
	waitTimers(t, h.fc, 0)
	h.fc.Advance(time.Minute)
	h.f.AssertNotCalled(t, "GetDelivery", mock.Anything, mock.Anything)
}

func TestPoller_CancelStopsTimers(t *testing.T) {
	h := startPoller(t, nil)
	h.p.Select("A")
	waitTimers(t, h.fc, 1)

	require.ErrorIs(t, h.stop(), context.Canceled)
	waitTimers(t, h.fc, 0)
	h.fc.Advance(time.Minute)
	h.f.AssertNotCalled(t, "GetDelivery", mock.Anything, mock.Anything)
}

func TestPoller_RateLimitedSkipsFetch(t *testing.T) {
	h := startPoller(t, func(p *Poller) {
		p.WithRateLimit(fakeRL{allowed: false, count: 31}, 30)
	})

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	h.fc.Advance(2500 * time.Millisecond)
	h.waitStat(t, func(st Stats) int64 { return st.RateLimited }, 1)
	waitTimers(t, h.fc, 1)

	h.f.AssertNotCalled(t, "GetDelivery", mock.Anything, mock.Anything)
	require.Equal(t, 2500*time.Millisecond, h.p.Interval())
}

func TestPoller_RateLimiterErrorDoesNotBlock(t *testing.T) {
	h := startPoller(t, func(p *Poller) {
		p.WithRateLimit(fakeRL{err: errors.New("redis down")}, 30)
	})
	h.f.On("GetDelivery", mock.Anything, "A").Return(&models.Delivery{ID: "A"}, nil).Once()

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	h.fc.Advance(2500 * time.Millisecond)
	h.waitUpdates(t, 1)
	h.f.AssertExpectations(t)
}

func TestPoller_TriggerPollsImmediately(t *testing.T) {
	h := startPoller(t, nil)
	h.f.On("GetDelivery", mock.Anything, "A").Return(&models.Delivery{ID: "A"}, nil).Once()

	h.p.Select("A")
	h.p.Trigger()

	h.waitUpdates(t, 1)
	require.NotNil(t, h.p.Stats().LastTriggerAt)
	waitTimers(t, h.fc, 1)
	require.Equal(t, 2500*time.Millisecond, h.p.Interval())
}

func TestPoller_WithBackoff(t *testing.T) {
	h := startPoller(t, func(p *Poller) {
		p.WithBackoff(BackoffConfig{Base: time.Second, Factor: 2, Ceiling: 3 * time.Second})
	})
	h.f.On("GetDelivery", mock.Anything, "A").Return(nil, errors.New("x"))

	h.p.Select("A")
	waitTimers(t, h.fc, 1)
	require.Equal(t, time.Second, h.p.Interval())

	h.fc.Advance(time.Second)
	h.waitStat(t, totalErrors, 1)
	waitTimers(t, h.fc, 1)
	h.fc.Advance(2 * time.Second)
	h.waitStat(t, totalErrors, 2)
	require.Equal(t, 3*time.Second, h.p.Interval())
}
