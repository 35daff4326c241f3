package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/integrations/backend/mock"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type stateSink struct {
	mu     sync.Mutex
	states []models.ConnectionState
}

func (s *stateSink) ApplyUpdate(*models.DeliveryUpdate) {}

func (s *stateSink) SetConnection(st models.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *stateSink) last() (models.ConnectionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return models.ConnectionState{}, false
	}
	return s.states[len(s.states)-1], true
}

func TestSelectKind(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.BackendConfig
		want Kind
	}{
		{"nothing configured", config.BackendConfig{}, KindMock},
		{"push url without api base", config.BackendConfig{PushURL: "ws://push.local"}, KindMock},
		{"blank api base", config.BackendConfig{APIBaseURL: "  ", PushURL: "ws://push.local"}, KindMock},
		{"api base only", config.BackendConfig{APIBaseURL: "http://api.local"}, KindPolling},
		{"api base and push", config.BackendConfig{APIBaseURL: "http://api.local", PushURL: "ws://push.local"}, KindPush},
		{"kafka push", config.BackendConfig{APIBaseURL: "http://api.local", PushURL: "kafka://k:9092/t"}, KindPush},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SelectKind(tc.cfg))
		})
	}
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

func newTestConfig(backend config.BackendConfig) *config.Config {
	cfg := &config.Config{Backend: backend}
	cfg.ApplyDefaults()
	return cfg
}

func TestSelector_MockMode(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	sink := &stateSink{}
	s := NewSelector(newTestConfig(config.BackendConfig{}), mock.New(fc), sink, fc)

	require.Equal(t, KindMock, s.Kind())
	require.False(t, s.Trigger())
	require.False(t, s.Send(map[string]string{"type": "ping"}))
	require.Equal(t, TransportStats{Kind: KindMock}, s.Stats())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, ok := sink.last()
		return ok && st == models.ConnectionState{Mode: models.ModeMock}
	}, time.Second, time.Millisecond)
	waitTimers(t, fc, 0)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSelector_PollingMode(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	s := NewSelector(newTestConfig(config.BackendConfig{APIBaseURL: "http://api.local"}), mock.New(fc), &stateSink{}, fc)

	require.Equal(t, KindPolling, s.Kind())
	require.True(t, s.Trigger())
	require.False(t, s.Send("x"))
	st := s.Stats()
	require.NotNil(t, st.Polling)
	require.Nil(t, st.Push)
}

func TestSelector_PushMode(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	s := NewSelector(newTestConfig(config.BackendConfig{APIBaseURL: "http://api.local", PushURL: "ws://push.local"}), mock.New(fc), &stateSink{}, fc)

	require.Equal(t, KindPush, s.Kind())
	require.False(t, s.Trigger())
	require.False(t, s.Send("x"))
	st := s.Stats()
	require.NotNil(t, st.Push)
	require.Nil(t, st.Polling)
}
