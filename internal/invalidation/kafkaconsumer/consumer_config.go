package kafkaconsumer

import (
	"time"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

// FromConfig derives the consumer settings from the service configuration.
// Refresh messages only matter to a running cache, so a new group starts at
// the newest offset.
func FromConfig(cfg config.Config) Config {
	return Config{
		Brokers:          config.Brokers(cfg.Events.Brokers),
		Topic:            cfg.Invalidation.Topic,
		GroupID:          cfg.Invalidation.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
	}
}
