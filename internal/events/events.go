// Package events publishes a Kafka record for every request URL the
// facade builds, tagged with the H3 cell of the request area.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	h3 "github.com/uber/h3-go/v4"

	"github.com/eurodatacube/edc-qgis-plugin/internal/core/observability"
)

type Event struct {
	Kind       string    `json:"kind"`
	Collection string    `json:"collection"`
	Layers     string    `json:"layers"`
	CRS        string    `json:"crs"`
	Time       string    `json:"time,omitempty"`
	Lon        float64   `json:"lon"`
	Lat        float64   `json:"lat"`
	Cell       string    `json:"cell,omitempty"`
	TS         time.Time `json:"ts"`
}

// CellFor returns the H3 cell containing lon/lat at res, "" when the point
// cannot be indexed.
func CellFor(lon, lat float64, res int) string {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return ""
	}
	return cell.String()
}

// Sink accepts events without blocking.
type Sink interface {
	Publish(ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

type Publisher struct {
	logger  *slog.Logger
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	drained chan struct{}
}

// Dial connects an async producer to brokers.
func Dial(logger *slog.Logger, brokers []string, topic string, queueSize int) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return NewPublisher(logger, prod, topic, queueSize), nil
}

// NewPublisher starts the forwarding goroutines over an existing producer.
func NewPublisher(logger *slog.Logger, prod sarama.AsyncProducer, topic string, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Publisher{
		logger:  logger,
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("events: marshal", "err", err)
				continue
			}
			msg := &sarama.ProducerMessage{Topic: p.topic, Value: sarama.ByteEncoder(b)}
			if ev.Cell != "" {
				msg.Key = sarama.StringEncoder(ev.Cell)
			}
			p.prod.Input() <- msg
		}
	}()

	go func() {
		defer close(p.drained)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncEvent("failed")
				p.logger.Warn("events: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish queues ev; a full queue drops it so request handling never blocks.
func (p *Publisher) Publish(ev Event) {
	select {
	case p.events <- ev:
		observability.IncEvent("queued")
	default:
		observability.IncEvent("dropped")
	}
}

// Close flushes queued events and closes the producer.
func (p *Publisher) Close(ctx context.Context) error {
	close(p.events)
	select {
	case <-p.stopped:
	case <-ctx.Done():
		return fmt.Errorf("events: flush: %w", ctx.Err())
	}
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	<-p.drained
	return nil
}
