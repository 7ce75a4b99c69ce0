// Package ingestion feeds events from external sources into the event log
// and keeps existing snapshots consistent with late arrivals.
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"nba-temporal-panel/internal/domain"
)

// ErrMalformedMessage is returned by a Feed for a message that could not be
// decoded. The feed remains usable; the caller may skip and continue.
var ErrMalformedMessage = errors.New("malformed feed message")

// Feed yields events one at a time.
// Next returns io.EOF once the feed is exhausted or closed.
type Feed interface {
	Next(ctx context.Context) (*domain.Event, error)
}

// wireEvent is the JSON shape of an event on every feed.
// Sequence and recorded_at are assigned by the store and ignored on input.
type wireEvent struct {
	EntityID  string           `json:"entity_id"`
	EventTime int64            `json:"event_time"`
	Precision domain.Precision `json:"precision_level"`
	Source    domain.Source    `json:"source"`
	GameID    string           `json:"game_id"`
	Period    int              `json:"period"`
	Payload   domain.Payload   `json:"payload"`
}

func (w *wireEvent) toEvent() *domain.Event {
	return &domain.Event{
		EntityID:  w.EntityID,
		EventTime: w.EventTime,
		Precision: w.Precision,
		Source:    w.Source,
		GameID:    w.GameID,
		Period:    w.Period,
		Payload:   w.Payload,
	}
}

func malformed(where string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, where, err)
}
