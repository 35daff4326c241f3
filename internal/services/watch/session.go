package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/integrations/backend"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/deliveries"
	"github.com/BearBump/TrackSync/internal/services/poller"
	"github.com/BearBump/TrackSync/internal/services/push"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ListErrorMessage is shown when the list could not be fetched; POST /reload retries.
const ListErrorMessage = "Unable to load deliveries."

type courierCatalogue interface {
	Couriers() []string
}

// Session is one watching session: the loaded list, the open detail, the filter and the
// single active transport feeding both views.
type Session struct {
	id         string
	cfg        *config.Config
	src        backend.Source
	clk        clockwork.Clock
	selector   *Selector
	dispatcher *Dispatcher

	list   ListView
	detail DetailView

	mu        sync.Mutex
	spec      models.FilterSpec
	selected  string
	conn      models.ConnectionState
	listGen   uint64
	detailGen uint64
	fetching  bool                     // detail fetch for selected is in flight
	pending   []*models.DeliveryUpdate // updates for selected received during the fetch
}

func NewSession(cfg *config.Config, src backend.Source, clk clockwork.Clock) *Session {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	s := &Session{
		id:   uuid.NewString(),
		cfg:  cfg,
		src:  src,
		clk:  clk,
		spec: models.DefaultFilterSpec(),
		conn: models.DisabledState(),
	}
	s.dispatcher = NewDispatcher(&s.list, &s.detail, LogListener{SessionID: s.id})
	s.selector = NewSelector(cfg, src, s, clk)
	return s
}

func (s *Session) WithRateLimiter(rl poller.RateLimiter, perMinute int64) *Session {
	s.selector.WithRateLimiter(rl, perMinute)
	return s
}

func (s *Session) WithDialer(d push.Dialer) *Session {
	s.selector.WithDialer(d)
	return s
}

func (s *Session) WithListener(l MergeListener) *Session {
	s.dispatcher.AddListener(l)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Kind() Kind { return s.selector.Kind() }

func (s *Session) Selector() *Selector { return s.selector }

func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// ApplyUpdate is called by the active transport. Updates for the selected delivery that
// arrive while its detail is still being fetched are replayed onto the fetched record.
func (s *Session) ApplyUpdate(u *models.DeliveryUpdate) {
	s.mu.Lock()
	if s.fetching && u != nil && u.ID == s.selected {
		s.pending = append(s.pending, u)
	}
	s.mu.Unlock()
	s.dispatcher.Apply(u)
}

// SetConnection is called by the active transport on every status change.
func (s *Session) SetConnection(st models.ConnectionState) {
	s.mu.Lock()
	s.conn = st
	s.mu.Unlock()
	slog.Info("connection state", "session_id", s.id, "mode", st.Mode, "connected", st.Connected)
}

func (s *Session) Connection() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Run loads the list, opens the configured delivery and drives the transport until ctx is
// done. Fetch failures are recorded on the snapshot, not returned.
func (s *Session) Run(ctx context.Context) error {
	slog.Info("session started", "session_id", s.id, "transport", s.selector.Kind())
	defer slog.Info("session stopped", "session_id", s.id)

	_ = s.Reload(ctx)
	if id := s.cfg.Watcher.SelectedID; id != "" {
		_ = s.Select(ctx, id)
	}
	return s.selector.Run(ctx)
}

// Select opens delivery id in the detail view and points polling at it. An empty id closes
// the detail. A fetch that resolves after another Select is discarded.
func (s *Session) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	s.detailGen++
	gen := s.detailGen
	s.selected = id
	s.fetching = id != ""
	s.pending = nil
	s.mu.Unlock()

	s.detail.set(nil)
	s.selector.Select(id)
	if id == "" {
		return nil
	}

	d, err := s.src.GetDelivery(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.detailGen {
		slog.Debug("stale detail fetch dropped", "session_id", s.id, "delivery_id", id)
		return nil
	}
	pending := s.pending
	s.fetching = false
	s.pending = nil
	if err != nil {
		slog.Warn("detail fetch", "session_id", s.id, "delivery_id", id, "error", err.Error())
		return err
	}
	// nil: не найдено, показываем пустую карточку
	for _, u := range pending {
		if d != nil {
			d = deliveries.Merge(d, u)
		}
	}
	s.detail.set(d)
	return nil
}

// SetFilter replaces the filter and reloads the list with it.
func (s *Session) SetFilter(ctx context.Context, spec models.FilterSpec) error {
	s.mu.Lock()
	s.spec = spec
	s.mu.Unlock()
	return s.Reload(ctx)
}

// ClearFilter restores the default filter (every status selected).
func (s *Session) ClearFilter(ctx context.Context) error {
	return s.SetFilter(ctx, models.DefaultFilterSpec())
}

func (s *Session) Filter() models.FilterSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Reload re-fetches the list with the current filter. Only the latest reload may update
// the list.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.listGen++
	gen := s.listGen
	spec := s.spec
	s.mu.Unlock()

	s.list.setLoading()
	items, err := s.src.ListDeliveries(ctx, spec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.listGen {
		return nil
	}
	if err != nil {
		slog.Warn("list fetch", "session_id", s.id, "error", err.Error())
		s.list.fail(ListErrorMessage)
		return err
	}
	s.list.set(items)
	slog.Debug("list loaded", "session_id", s.id, "count", len(items))
	return nil
}

// Couriers lists the couriers of the loaded list. In mock mode an empty list falls back
// to the couriers of the mock dataset.
func (s *Session) Couriers() []string {
	items, _, _ := s.list.snapshot()
	out := deliveries.Couriers(items)
	if len(out) == 0 && s.selector.Kind() == KindMock {
		if c, ok := s.src.(courierCatalogue); ok {
			return c.Couriers()
		}
	}
	return out
}

type Snapshot struct {
	SessionID  string                 `json:"sessionId"`
	Transport  Kind                   `json:"transport"`
	Connection models.ConnectionState `json:"connection"`
	Filter     models.FilterSpec      `json:"filter"`
	Loading    bool                   `json:"loading"`
	ListError  string                 `json:"listError,omitempty"`
	Total      int                    `json:"total"`
	Deliveries []*models.Delivery     `json:"deliveries"`
	Selected   string                 `json:"selected,omitempty"`
	Detail     *models.Delivery       `json:"detail,omitempty"`
	Couriers   []string               `json:"couriers"`
}

// Snapshot returns copies of the visible state: the list after the filter, the detail and
// the connection status.
func (s *Session) Snapshot() Snapshot {
	items, loading, listErr := s.list.snapshot()

	s.mu.Lock()
	spec := s.spec
	selected := s.selected
	conn := s.conn
	s.mu.Unlock()

	visible := deliveries.Filter(items, spec)
	for i, d := range visible {
		visible[i] = d.Clone()
	}
	return Snapshot{
		SessionID:  s.id,
		Transport:  s.selector.Kind(),
		Connection: conn,
		Filter:     spec,
		Loading:    loading,
		ListError:  listErr,
		Total:      len(items),
		Deliveries: visible,
		Selected:   selected,
		Detail:     s.detail.Detail().Clone(),
		Couriers:   s.Couriers(),
	}
}
