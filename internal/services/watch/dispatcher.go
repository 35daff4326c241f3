package watch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/deliveries"
)

// ListObserver exposes list entries by id.
type ListObserver interface {
	// Entry returns the listed delivery with id, or nil.
	Entry(id string) *models.Delivery
	ReplaceEntry(d *models.Delivery)
}

// DetailObserver exposes the delivery open in the detail view.
type DetailObserver interface {
	Detail() *models.Delivery
	// ReplaceDetail must ignore d when the detail view has moved to another id.
	ReplaceDetail(d *models.Delivery)
}

// MergeListener is told about every merged delivery, after the views are updated.
type MergeListener interface {
	DeliveryMerged(d *models.Delivery)
}

// Dispatcher routes inbound updates through Merge into the list entry and the detail view.
// Updates are applied one at a time, in arrival order.
type Dispatcher struct {
	mu        sync.Mutex
	list      ListObserver
	detail    DetailObserver
	listeners []MergeListener

	applied atomic.Int64
	ignored atomic.Int64
}

func NewDispatcher(list ListObserver, detail DetailObserver, listeners ...MergeListener) *Dispatcher {
	return &Dispatcher{list: list, detail: detail, listeners: listeners}
}

func (d *Dispatcher) AddListener(l MergeListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Apply merges u into whichever views currently show its delivery and returns the merged
// delivery (the detail version when both do). Updates for deliveries nobody shows are
// dropped and nil is returned.
func (d *Dispatcher) Apply(u *models.DeliveryUpdate) *models.Delivery {
	if u == nil || u.ID == "" {
		d.ignored.Add(1)
		return nil
	}

	d.mu.Lock()
	var merged *models.Delivery
	if cur := d.list.Entry(u.ID); cur != nil {
		merged = deliveries.Merge(cur, u)
		d.list.ReplaceEntry(merged)
	}
	if cur := d.detail.Detail(); cur != nil && cur.ID == u.ID {
		merged = deliveries.Merge(cur, u)
		d.detail.ReplaceDetail(merged)
	}
	listeners := d.listeners
	d.mu.Unlock()

	if merged == nil {
		d.ignored.Add(1)
		slog.Debug("update for unwatched delivery", "delivery_id", u.ID)
		return nil
	}
	d.applied.Add(1)
	for _, l := range listeners {
		l.DeliveryMerged(merged.Clone())
	}
	return merged
}

type DispatchStats struct {
	Applied int64 `json:"applied"`
	Ignored int64 `json:"ignored"`
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{Applied: d.applied.Load(), Ignored: d.ignored.Load()}
}
