package kafka

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads push frames from one topic. Offsets are committed only with a consumer
// group; without one the reader tails the topic from the last offset.
type Consumer struct {
	r      messageReader
	commit bool
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
		cfg.StartOffset = kafka.LastOffset
	}
	return newConsumerWithReader(kafka.NewReader(cfg), groupID != "")
}

func newConsumerWithReader(r messageReader, commit bool) *Consumer {
	return &Consumer{r: r, commit: commit}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Next blocks until the next message and, in a consumer group, commits it before returning
// its value. A frame is handed out once even if the caller later drops it as malformed.
func (c *Consumer) Next(ctx context.Context) ([]byte, error) {
	msg, err := c.r.FetchMessage(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch message")
	}
	if !c.commit {
		return msg.Value, nil
	}
	if err := c.r.CommitMessages(ctx, msg); err != nil {
		return nil, errors.Wrap(err, "commit message")
	}
	return msg.Value, nil
}

// Endpoint is a parsed kafka://host:port[,host:port]/topic?group=g push URL.
type Endpoint struct {
	Brokers []string
	Topic   string
	GroupID string
}

func IsURL(raw string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "kafka://")
}

func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, errors.Wrap(err, "parse kafka url")
	}
	if u.Scheme != "kafka" {
		return Endpoint{}, errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	var ep Endpoint
	for _, b := range strings.Split(u.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			ep.Brokers = append(ep.Brokers, b)
		}
	}
	ep.Topic = strings.Trim(u.Path, "/")
	ep.GroupID = u.Query().Get("group")
	if len(ep.Brokers) == 0 || ep.Topic == "" {
		return Endpoint{}, errors.Errorf("kafka url %q needs brokers and a topic", raw)
	}
	return ep, nil
}
