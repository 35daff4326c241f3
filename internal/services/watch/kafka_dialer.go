package watch

import (
	"context"
	"sync"

	"github.com/BearBump/TrackSync/internal/broker/kafka"
	"github.com/BearBump/TrackSync/internal/services/push"
)

type frameReader interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// kafkaDialer treats a Kafka topic as a receive-only push channel.
type kafkaDialer struct {
	newReader func(ep kafka.Endpoint) frameReader
}

func newKafkaDialer() kafkaDialer {
	return kafkaDialer{newReader: func(ep kafka.Endpoint) frameReader {
		return kafka.NewConsumer(ep.Brokers, ep.Topic, ep.GroupID)
	}}
}

func (d kafkaDialer) Dial(ctx context.Context, url string) (push.Conn, error) {
	ep, err := kafka.ParseURL(url)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &kafkaConn{r: d.newReader(ep), ctx: ctx, cancel: cancel}, nil
}

type kafkaConn struct {
	r      frameReader
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (c *kafkaConn) Read() ([]byte, error) {
	return c.r.Next(c.ctx)
}

func (c *kafkaConn) Write([]byte) error {
	return push.ErrReadOnly
}

func (c *kafkaConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.r.Close()
	})
	return c.closeErr
}
