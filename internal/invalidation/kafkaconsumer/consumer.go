// Package kafkaconsumer applies catalog refresh messages from Kafka to the
// facade's catalog cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/eurodatacube/edc-qgis-plugin/internal/core/observability"
	"github.com/eurodatacube/edc-qgis-plugin/internal/invalidation"
	mylog "github.com/eurodatacube/edc-qgis-plugin/internal/logger"
)

// Invalidator drops cached catalogs, usually a *catalog.Cache.
type Invalidator interface {
	Invalidate(ctx context.Context, serviceURL, service string) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  Invalidator
}

func New(cfg Config, logger *slog.Logger, c Invalidator) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, cache: c}
}

// Start consumes refresh messages until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing catalog cache")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	handler := &groupHandler{process: c.ProcessOne}

	c.logger.InfoContext(ctx, "catalog invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			c.logger.ErrorContext(ctx, "kafka consumer error",
				"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
		if ctx.Err() != nil {
			c.logger.InfoContext(ctx, "catalog invalidation consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies a single message. Undecodable or invalid messages are
// counted and skipped; only a failing cache tier is returned as an error so
// the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncInvalidation("decode")
		c.logger.WarnContext(ctx, "skipping undecodable refresh message",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncInvalidation("invalid")
		c.logger.WarnContext(ctx, "skipping invalid refresh message",
			"offset", msg.Offset, "err", err)
		return nil
	}

	ctx = mylog.WithServiceURL(ctx, ev.ServiceURL)
	for _, svc := range ev.Services() {
		if err := c.cache.Invalidate(ctx, ev.ServiceURL, svc); err != nil {
			obs.IncInvalidation("error")
			return fmt.Errorf("invalidate %s: %w", svc, err)
		}
	}
	obs.IncInvalidation("ok")
	c.logger.DebugContext(ctx, "catalog invalidated", "op", ev.Op, "services", ev.Services())
	return nil
}
