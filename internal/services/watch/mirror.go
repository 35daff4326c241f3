package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/BearBump/TrackSync/internal/broker/messages"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Mirror republishes merged deliveries to a Kafka topic, keyed by delivery id.
// Publishing happens on the Run goroutine; when the queue is full the update is dropped.
type Mirror struct {
	p         Producer
	topic     string
	sessionID string
	source    string
	clk       clockwork.Clock

	queue     chan *models.Delivery
	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func NewMirror(p Producer, topic, sessionID string, source Kind, clk clockwork.Clock) *Mirror {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Mirror{
		p:         p,
		topic:     topic,
		sessionID: sessionID,
		source:    string(source),
		clk:       clk,
		queue:     make(chan *models.Delivery, 256),
	}
}

func (m *Mirror) DeliveryMerged(d *models.Delivery) {
	select {
	case m.queue <- d:
	default:
		m.dropped.Add(1)
		slog.Warn("mirror queue full", "delivery_id", d.ID, "topic", m.topic)
	}
}

func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-m.queue:
			if err := m.publish(ctx, d); err != nil {
				m.failed.Add(1)
				slog.Error("mirror publish", "delivery_id", d.ID, "error", err.Error())
				continue
			}
			m.published.Add(1)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, d *models.Delivery) error {
	b, err := json.Marshal(messages.NewDeliveryMerged(m.sessionID, m.source, d, m.clk.Now().UTC()))
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}
	return m.p.Publish(ctx, m.topic, []byte(d.ID), b)
}

type MirrorStats struct {
	Topic     string `json:"topic"`
	Published int64  `json:"published"`
	Dropped   int64  `json:"dropped"`
	Failed    int64  `json:"failed"`
}

func (m *Mirror) Stats() MirrorStats {
	return MirrorStats{
		Topic:     m.topic,
		Published: m.published.Load(),
		Dropped:   m.dropped.Load(),
		Failed:    m.failed.Load(),
	}
}

// LogListener writes one debug line per merged delivery.
type LogListener struct {
	SessionID string
}

func (l LogListener) DeliveryMerged(d *models.Delivery) {
	slog.Debug("delivery merged",
		"session_id", l.SessionID,
		"delivery_id", d.ID,
		"status", d.Status,
		"events", len(d.Timeline),
	)
}
