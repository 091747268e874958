package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BearBump/DelayBoard/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic and commits a message only after its handler
// succeeded, so a failed message is redelivered.
type Consumer struct {
	r       messageReader
	skipped atomic.Int64
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
	}
	return &Consumer{r: kafka.NewReader(cfg)}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Skipped is the number of overdue-topic messages dropped as undecodable.
func (c *Consumer) Skipped() int64 {
	return c.skipped.Load()
}

// Consume passes raw messages to handler until fetching fails or handler
// returns an error.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			return errors.Wrapf(err, "handle message at %s/%d offset %d", msg.Topic, msg.Partition, msg.Offset)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// OverdueHandler receives the decoded messages of the overdue topic.
type OverdueHandler interface {
	OrderOverdue(ctx context.Context, m messages.OrderOverdue) error
	SnapshotReady(ctx context.Context, m messages.SnapshotReady) error
}

// ConsumeOverdue decodes the overdue topic and dispatches by message kind.
// Undecodable messages, unknown kinds and messages without account or
// snapshot id are logged, counted and committed.
func (c *Consumer) ConsumeOverdue(ctx context.Context, h OverdueHandler) error {
	return c.Consume(ctx, func(_, value []byte) error {
		return c.dispatchOverdue(ctx, value, h)
	})
}

func (c *Consumer) dispatchOverdue(ctx context.Context, value []byte, h OverdueHandler) error {
	kind, err := messages.KindOf(value)
	if err != nil {
		return c.skip("undecodable", err)
	}

	switch kind {
	case messages.KindOrderOverdue:
		var m messages.OrderOverdue
		if err := json.Unmarshal(value, &m); err != nil {
			return c.skip(kind, err)
		}
		if m.AccountID == "" || m.SnapshotID == "" {
			return c.skip(kind, errors.New("account or snapshot id missing"))
		}
		return h.OrderOverdue(ctx, m)
	case messages.KindSnapshotReady:
		var m messages.SnapshotReady
		if err := json.Unmarshal(value, &m); err != nil {
			return c.skip(kind, err)
		}
		if m.AccountID == "" || m.SnapshotID == "" {
			return c.skip(kind, errors.New("account or snapshot id missing"))
		}
		return h.SnapshotReady(ctx, m)
	default:
		return c.skip(kind, errors.New("unknown message kind"))
	}
}

func (c *Consumer) skip(kind string, err error) error {
	c.skipped.Add(1)
	slog.Warn("skip overdue topic message", "kind", kind, "error", err.Error())
	return nil
}
