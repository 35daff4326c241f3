package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/jonboulle/clockwork"
)

type Fetcher interface {
	// GetDelivery returns (nil, nil) when the backend does not know the id.
	GetDelivery(ctx context.Context, id string) (*models.Delivery, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Sink receives fetched deliveries and connection status changes.
// Calls are never made while the poller holds its lock.
type Sink interface {
	ApplyUpdate(u *models.DeliveryUpdate)
	SetConnection(st models.ConnectionState)
}

// Poller fetches the selected delivery on a backoff-governed cadence.
// Nothing is scheduled while no delivery is selected.
type Poller struct {
	src  Fetcher
	sink Sink
	rl   RateLimiter
	clk  clockwork.Clock

	rateLimitPerMinute int64

	triggerCh chan struct{}

	mu        sync.Mutex
	ctx       context.Context
	backoff   *BackoffPolicy
	selected  string
	gen       uint64 // bumped on every selection change and on stop
	armSeq    uint64
	reqSeq    uint64 // only the latest fetch may apply its result
	timer     clockwork.Timer
	connected bool

	startedAtUnixNano   int64
	lastPollUnixNano    atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalPolls          atomic.Int64
	totalErrors         atomic.Int64
	totalStale          atomic.Int64
	totalRateLimited    atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(src Fetcher, sink Sink, clk clockwork.Clock) *Poller {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Poller{
		src:               src,
		sink:              sink,
		clk:               clk,
		backoff:           NewBackoffPolicy(DefaultBackoffConfig()),
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: clk.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithBackoff(cfg BackoffConfig) *Poller {
	p.mu.Lock()
	p.backoff = NewBackoffPolicy(cfg)
	p.mu.Unlock()
	return p
}

// WithRateLimit caps fetches per delivery per minute. A nil limiter or a non-positive
// limit disables the check.
func (p *Poller) WithRateLimit(rl RateLimiter, perMinute int64) *Poller {
	p.rl = rl
	p.rateLimitPerMinute = perMinute
	return p
}

// Select switches the polling target. The backoff interval is kept; the next poll for the
// new id is scheduled after the current interval and any in-flight result for the old id
// is discarded.
func (p *Poller) Select(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id == p.selected {
		return
	}
	p.selected = id
	p.gen++
	p.armLocked()
}

// Interval is the delay the next poll will be scheduled with.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backoff.Current()
}

// Trigger forces an immediate poll of the selected delivery (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(p.clk.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastPollAt    *time.Time `json:"lastPollAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	Selected      string     `json:"selected,omitempty"`
	IntervalMs    int64      `json:"intervalMs"`
	TotalPolls    int64      `json:"totalPolls"`
	TotalErrors   int64      `json:"totalErrors"`
	TotalStale    int64      `json:"totalStale"`
	RateLimited   int64      `json:"rateLimited"`
	LastError     string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:   time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalPolls:  p.totalPolls.Load(),
		TotalErrors: p.totalErrors.Load(),
		TotalStale:  p.totalStale.Load(),
		RateLimited: p.totalRateLimited.Load(),
	}
	if n := p.lastPollUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastPollAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.mu.Lock()
	st.Selected = p.selected
	st.IntervalMs = p.backoff.Current().Milliseconds()
	p.mu.Unlock()
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// Run reports polling mode and keeps the schedule alive until ctx is cancelled.
// After Run returns no timer is pending and late fetch results are dropped.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	p.connected = false
	p.armLocked()
	p.mu.Unlock()

	p.sink.SetConnection(models.ConnectionState{Mode: models.ModePolling})

	for {
		select {
		case <-ctx.Done():
			p.stop()
			return ctx.Err()
		case <-p.triggerCh:
			p.pollNow()
		}
	}
}

func (p *Poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = nil
	p.gen++
	p.disarmLocked()
}

func (p *Poller) disarmLocked() {
	p.armSeq++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) armLocked() {
	p.disarmLocked()
	if p.ctx == nil || p.selected == "" {
		return
	}
	gen, seq := p.gen, p.armSeq
	p.timer = p.clk.AfterFunc(p.backoff.Current(), func() { p.tick(gen, seq) })
}

func (p *Poller) tick(gen, seq uint64) {
	p.mu.Lock()
	if gen != p.gen || seq != p.armSeq || p.ctx == nil {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	ctx, id := p.ctx, p.selected
	p.mu.Unlock()

	p.poll(ctx, gen, id)
}

func (p *Poller) pollNow() {
	p.mu.Lock()
	if p.ctx == nil || p.selected == "" {
		p.mu.Unlock()
		return
	}
	p.disarmLocked()
	ctx, gen, id := p.ctx, p.gen, p.selected
	p.mu.Unlock()

	p.poll(ctx, gen, id)
}

func (p *Poller) poll(ctx context.Context, gen uint64, id string) {
	now := p.clk.Now().UTC()
	p.lastPollUnixNano.Store(now.UnixNano())

	if !p.allow(ctx, id, now) {
		p.totalRateLimited.Add(1)
		p.mu.Lock()
		if gen == p.gen {
			p.armLocked()
		}
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.reqSeq++
	seq := p.reqSeq
	p.mu.Unlock()

	p.totalPolls.Add(1)
	d, err := p.src.GetDelivery(ctx, id)

	p.mu.Lock()
	if gen != p.gen || seq != p.reqSeq || p.ctx == nil {
		// выбор сменился или уже ушёл более новый запрос
		p.mu.Unlock()
		p.totalStale.Add(1)
		return
	}
	var next time.Duration
	if err != nil {
		next = p.backoff.Next()
	} else {
		next = p.backoff.Reset()
	}
	changed := p.connected != (err == nil)
	p.connected = err == nil
	p.armLocked()
	p.mu.Unlock()

	if err != nil {
		p.totalErrors.Add(1)
		p.lastErrorMu.Lock()
		p.lastError = err.Error()
		p.lastErrorMu.Unlock()
		slog.Warn("poll delivery", "delivery_id", id, "next_in", next, "error", err.Error())
	}
	if changed {
		p.sink.SetConnection(models.ConnectionState{Mode: models.ModePolling, Connected: err == nil})
	}
	if err == nil && d != nil {
		p.sink.ApplyUpdate(models.UpdateFromDelivery(d))
	}
}

func (p *Poller) allow(ctx context.Context, id string, now time.Time) bool {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return true
	}
	minuteKey := fmt.Sprintf("rl:poll:%s:%s", id, now.Format("200601021504"))
	allowed, n, err := p.rl.Allow(ctx, minuteKey, p.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		// лимитер недоступен: не блокируем опрос
		slog.Warn("poll rate limiter", "delivery_id", id, "error", err.Error())
		return true
	}
	if !allowed {
		slog.Warn("poll rate limit exceeded", "delivery_id", id, "count", n)
	}
	return allowed
}
