package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	h3 "github.com/uber/h3-go/v4"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCellFor(t *testing.T) {
	got := CellFor(18.0686, 59.3293, 6)
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: 59.3293, Lng: 18.0686}, 6)
	if err != nil {
		t.Fatalf("h3: %v", err)
	}
	if got != cell.String() || got == "" {
		t.Fatalf("CellFor=%q want %q", got, cell.String())
	}
	if CellFor(18, 59, 99) != "" {
		t.Fatalf("invalid resolution must yield empty cell")
	}
}

func TestPublisher_SendsJSONKeyedByCell(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Errors = true
	prod := mocks.NewAsyncProducer(t, cfg)
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Kind != "wcs" || ev.Collection != "Sentinel-2 L2A" || ev.Cell == "" {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := NewPublisher(discard(), prod, "edc-ogc-requests", 4)
	p.Publish(Event{
		Kind:       "wcs",
		Collection: "Sentinel-2 L2A",
		Layers:     "TRUE_COLOR",
		CRS:        "EPSG:3857",
		Lon:        14.5,
		Lat:        46.0,
		Cell:       CellFor(14.5, 46.0, 6),
		TS:         time.Now().UTC(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_ProducerErrorsAreDrained(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Errors = true
	prod := mocks.NewAsyncProducer(t, cfg)
	prod.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(discard(), prod, "t", 1)
	p.Publish(Event{Kind: "wms"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Publish(Event{Kind: "wms"})
}
