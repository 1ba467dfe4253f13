package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"footprint/internal/events"
	"footprint/internal/models"
	"footprint/internal/store"
	"footprint/internal/timeframe"
)

// ErrInvalidWindow is returned for a query whose date range cannot be
// resolved.
var ErrInvalidWindow = errors.New("analytics: invalid window")

// Query selects the events to aggregate. Explicit dates win over Days.
type Query struct {
	Domain    string
	Days      int
	StartDate string
	EndDate   string
}

// EventReader is the slice of the repository the query service needs.
type EventReader interface {
	ListEvents(ctx context.Context, filter store.EventFilter) ([]models.Event, error)
}

// Service answers dashboard queries by reading stored events and running
// Aggregate over them.
type Service struct {
	reader EventReader
	parser *timeframe.TimeFrameParser
	loc    *time.Location
	logger *slog.Logger
}

func NewService(reader EventReader, loc *time.Location, logger *slog.Logger, timeProvider ...timeframe.TimeProvider) *Service {
	return &Service{
		reader: reader,
		parser: timeframe.NewTimeFrameParser(loc, timeProvider...),
		loc:    loc,
		logger: logger,
	}
}

// Window resolves q into a window in the canonical zone.
func (s *Service) Window(q Query) (timeframe.Window, error) {
	window, err := s.parser.Parse(timeframe.TimeFrameParserParams{
		Days:      q.Days,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
	})
	if err != nil {
		return timeframe.Window{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	return window, nil
}

func (s *Service) Query(ctx context.Context, q Query) (*Report, error) {
	window, err := s.Window(q)
	if err != nil {
		return nil, err
	}

	records, err := s.reader.ListEvents(ctx, store.EventFilter{
		Domain: q.Domain,
		From:   window.Start,
		To:     window.Until(),
	})
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	evts := make([]*events.CanonicalEvent, 0, len(records))
	for _, record := range records {
		event, err := store.EventFromRecord(record, s.loc)
		if err != nil {
			s.logger.Warn("Skipping undecodable event",
				slog.String("id", record.ID),
				slog.Any("error", err))
			continue
		}
		evts = append(evts, event)
	}

	report := Aggregate(evts, window)
	s.logger.Debug("Aggregated stats",
		slog.String("domain", q.Domain),
		slog.String("from", report.Window.StartDate),
		slog.String("to", report.Window.EndDate),
		slog.Int("events", len(evts)))
	return report, nil
}
