package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/deliveries"
	"github.com/jonboulle/clockwork"
)

// Source отдаёт статический набор доставок для режима без бэкенда.
// Времена считаются от момента создания, поэтому ETA всегда выглядят правдоподобно.
// Нет сети, нет таймеров: ответы отдаются сразу.
type Source struct {
	mu    sync.RWMutex
	items []*models.Delivery
}

func New(clk clockwork.Clock) *Source {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Source{items: Dataset(clk.Now().UTC())}
}

func (s *Source) ListDeliveries(ctx context.Context, spec models.FilterSpec) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := deliveries.Filter(s.items, spec)
	out := make([]*models.Delivery, 0, len(matched))
	for _, d := range matched {
		out = append(out, d.Clone())
	}
	return out, nil
}

func (s *Source) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.items {
		if d.ID == id {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

// Couriers lists the couriers of the whole dataset, independent of any filter.
func (s *Source) Couriers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deliveries.Couriers(s.items)
}

// Dataset builds the four demo deliveries with times relative to now.
func Dataset(now time.Time) []*models.Delivery {
	in := func(h float64) time.Time { return now.Add(time.Duration(h * float64(time.Hour))) }
	ago := func(h float64) time.Time { return in(-h) }
	loc := func(s string) *string { return &s }
	ev := func(id string, at time.Time, st models.DeliveryStatus, msg string, where *string) models.DeliveryEvent {
		return models.DeliveryEvent{ID: id, Timestamp: at, Status: st, Message: msg, Location: where}
	}

	return []*models.Delivery{
		{
			ID:        "ORD-10492",
			Recipient: "Alex Morgan",
			Address:   "221B Market St, San Francisco, CA",
			Courier:   "OceanExpress",
			Status:    models.StatusInTransit,
			ETA:       in(6),
			Mine:      true,
			Timeline: []models.DeliveryEvent{
				ev("e1", ago(18), models.StatusInTransit, "Label created", nil),
				ev("e2", ago(12), models.StatusInTransit, "Picked up by courier", loc("San Jose, CA")),
				ev("e3", ago(4), models.StatusInTransit, "Arrived at sorting facility", loc("San Francisco, CA")),
			},
		},
		{
			ID:        "ORD-10501",
			Recipient: "Priya Patel",
			Address:   "14 Ocean Ave, Los Angeles, CA",
			Courier:   "SwiftShip",
			Status:    models.StatusDelivered,
			ETA:       ago(3),
			Timeline: []models.DeliveryEvent{
				ev("e1", ago(30), models.StatusInTransit, "Shipment accepted", loc("Irvine, CA")),
				ev("e2", ago(10), models.StatusInTransit, "Out for delivery", loc("Los Angeles, CA")),
				ev("e3", ago(3), models.StatusDelivered, "Delivered to front desk", nil),
			},
		},
		{
			ID:        "ORD-10577",
			Recipient: "Chen Wei",
			Address:   "77 Bayview Rd, Seattle, WA",
			Courier:   "OceanExpress",
			Status:    models.StatusDelayed,
			ETA:       in(18),
			Mine:      true,
			Timeline: []models.DeliveryEvent{
				ev("e1", ago(40), models.StatusInTransit, "Departed origin facility", loc("Portland, OR")),
				ev("e2", ago(16), models.StatusDelayed, "Weather delay reported", loc("Tacoma, WA")),
			},
		},
		{
			ID:        "ORD-10602",
			Recipient: "Sam Rivera",
			Address:   "500 Pine St, New York, NY",
			Courier:   "NorthStar",
			Status:    models.StatusInTransit,
			ETA:       in(28),
			Timeline: []models.DeliveryEvent{
				ev("e1", ago(22), models.StatusInTransit, "Arrived at hub", loc("Newark, NJ")),
				ev("e2", ago(2), models.StatusInTransit, "In transit to destination", loc("New York, NY")),
			},
		},
	}
}
