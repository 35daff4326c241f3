package watch

import (
	"context"
	"strings"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/broker/kafka"
	"github.com/BearBump/TrackSync/internal/integrations/backend"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/poller"
	"github.com/BearBump/TrackSync/internal/services/push"
	"github.com/jonboulle/clockwork"
)

type Kind string

const (
	KindMock    Kind = "mock"
	KindPush    Kind = "push"
	KindPolling Kind = "polling"
)

// SelectKind picks the update transport from configuration alone. Without an API base
// URL there is nothing to talk to, so mock wins even when a push URL is set.
func SelectKind(cfg config.BackendConfig) Kind {
	switch {
	case strings.TrimSpace(cfg.APIBaseURL) == "":
		return KindMock
	case strings.TrimSpace(cfg.PushURL) != "":
		return KindPush
	default:
		return KindPolling
	}
}

// Sink is what every transport feeds.
type Sink interface {
	ApplyUpdate(u *models.DeliveryUpdate)
	SetConnection(st models.ConnectionState)
}

// Selector owns the single active transport of a session. Push and polling are never
// armed together.
type Selector struct {
	kind Kind
	sink Sink

	poller *poller.Poller
	push   *push.Client
}

func NewSelector(cfg *config.Config, src backend.Source, sink Sink, clk clockwork.Clock) *Selector {
	s := &Selector{kind: SelectKind(cfg.Backend), sink: sink}
	switch s.kind {
	case KindPush:
		url := strings.TrimSpace(cfg.Backend.PushURL)
		var dialer push.Dialer = push.WebSocketDialer{}
		if kafka.IsURL(url) {
			dialer = newKafkaDialer()
		}
		s.push = push.NewClient(url, dialer, sink, clk).
			WithReconnectDelay(cfg.Sync.ReconnectDelay())
	case KindPolling:
		s.poller = poller.New(src, sink, clk).
			WithBackoff(poller.BackoffConfig{
				Base:    cfg.Sync.PollBase(),
				Factor:  cfg.Sync.PollFactor,
				Ceiling: cfg.Sync.PollCeiling(),
			})
	}
	return s
}

func (s *Selector) Kind() Kind { return s.kind }

// WithRateLimiter shares a poll budget across watchers. Only polling uses it.
func (s *Selector) WithRateLimiter(rl poller.RateLimiter, perMinute int64) *Selector {
	if s.poller != nil && rl != nil {
		s.poller.WithRateLimit(rl, perMinute)
	}
	return s
}

// WithDialer overrides the push dialer picked from the push URL scheme.
func (s *Selector) WithDialer(d push.Dialer) *Selector {
	if s.push != nil {
		s.push.WithDialer(d)
	}
	return s
}

// Select tells the transport which delivery is open. Only polling cares.
func (s *Selector) Select(id string) {
	if s.poller != nil {
		s.poller.Select(id)
	}
}

// Trigger forces an immediate poll; false when not polling.
func (s *Selector) Trigger() bool {
	if s.poller == nil {
		return false
	}
	s.poller.Trigger()
	return true
}

// Send writes to the push channel; false unless a live push connection accepted it.
func (s *Selector) Send(payload any) bool {
	if s.push == nil {
		return false
	}
	return s.push.Send(payload)
}

// Run drives the selected transport until ctx is done.
func (s *Selector) Run(ctx context.Context) error {
	switch s.kind {
	case KindPush:
		return s.push.Run(ctx)
	case KindPolling:
		return s.poller.Run(ctx)
	default:
		s.sink.SetConnection(models.ConnectionState{Mode: models.ModeMock})
		<-ctx.Done()
		return ctx.Err()
	}
}

type TransportStats struct {
	Kind    Kind          `json:"kind"`
	Polling *poller.Stats `json:"polling,omitempty"`
	Push    *push.Stats   `json:"push,omitempty"`
}

func (s *Selector) Stats() TransportStats {
	st := TransportStats{Kind: s.kind}
	if s.poller != nil {
		ps := s.poller.Stats()
		st.Polling = &ps
	}
	if s.push != nil {
		ps := s.push.Stats()
		st.Push = &ps
	}
	return st
}
