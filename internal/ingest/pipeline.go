// Package ingest turns inbound raw events into stored, presence-tracked and
// published canonical events.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"footprint/internal/events"
	"footprint/internal/metrics"
	"footprint/internal/pkg/async"
	"footprint/internal/pkg/geoip"
	"footprint/internal/pkg/referrers"
	"footprint/internal/presence"
	"footprint/internal/store"
)

const (
	// DefaultGeoTimeout bounds a single location lookup.
	DefaultGeoTimeout = 500 * time.Millisecond

	defaultWriteWorkers = 4
)

// Publisher receives every accepted canonical event.
type Publisher interface {
	Publish(event *events.CanonicalEvent)
}

// Result describes what happened to one inbound event. Accepted is true for
// everything the client should not retry, including malformed events that
// were dropped.
type Result struct {
	Accepted bool
	Stored   bool
	Event    *events.CanonicalEvent
}

type Options struct {
	Normalizer *events.Normalizer
	Repository store.Repository
	Presence   presence.Tracker
	Publisher  Publisher
	Locator    geoip.Locator
	GeoTimeout time.Duration
	// Workers bounds concurrent repository writes per event.
	Workers int
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Pipeline is safe for concurrent use; every event is processed
// independently and relies on the repository's keyed upserts for ordering.
type Pipeline struct {
	normalizer *events.Normalizer
	repo       store.Repository
	tracker    presence.Tracker
	publisher  Publisher
	locator    geoip.Locator
	geoTimeout time.Duration
	pool       *async.Pool
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		normalizer: opts.Normalizer,
		repo:       opts.Repository,
		tracker:    opts.Presence,
		publisher:  opts.Publisher,
		locator:    opts.Locator,
		geoTimeout: opts.GeoTimeout,
		pool:       async.NewPool(workers(opts.Workers)),
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if p.normalizer == nil {
		p.normalizer = events.NewNormalizer(nil, nil)
	}
	if p.geoTimeout <= 0 {
		p.geoTimeout = DefaultGeoTimeout
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func workers(n int) int {
	if n <= 0 {
		return defaultWriteWorkers
	}
	return n
}

// Ingest normalizes raw and applies it. Malformed events are logged and
// reported as accepted but not stored. Only repository failures are returned
// as errors; enrichment and presence problems are logged and absorbed.
func (p *Pipeline) Ingest(ctx context.Context, raw *events.RawEvent, meta events.Meta) (Result, error) {
	started := time.Now()
	defer func() { p.metrics.ObserveIngest(time.Since(started).Seconds()) }()

	event, err := p.normalizer.Normalize(raw, meta)
	if err != nil {
		var invalid *events.ValidationError
		if errors.As(err, &invalid) {
			p.metrics.EventRejected(invalid.Field)
			p.logger.Warn("Dropping malformed event",
				slog.String("type", string(invalid.Type)),
				slog.String("field", invalid.Field),
				slog.String("reason", invalid.Reason))
			return Result{Accepted: true}, nil
		}
		return Result{}, fmt.Errorf("normalize event: %w", err)
	}
	p.metrics.EventReceived(event.Type.Label())

	if event.Domain == "" && event.Fingerprint != "" {
		p.resolveDomain(ctx, event)
	}
	if event.Type.Durable() {
		p.enrichLocation(ctx, event)
	}

	if err := p.write(ctx, event); err != nil {
		return Result{}, err
	}

	p.updatePresence(ctx, event)
	if p.publisher != nil {
		p.publisher.Publish(event)
	}

	return Result{Accepted: true, Stored: event.Type.Durable(), Event: event}, nil
}

// resolveDomain fills the domain of lifecycle events, which trackers send
// without one, from the visitor's first recorded domain.
func (p *Pipeline) resolveDomain(ctx context.Context, event *events.CanonicalEvent) {
	user, err := p.repo.FindUser(ctx, event.Fingerprint)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("Failed to resolve visitor domain",
				slog.String("fingerprint", event.Fingerprint),
				slog.Any("error", err))
		}
		return
	}
	event.Domain = user.Domain
}

func (p *Pipeline) enrichLocation(ctx context.Context, event *events.CanonicalEvent) {
	if p.locator == nil || event.IP == "" || event.Location.Valid() {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, p.geoTimeout)
	defer cancel()

	place, err := p.locator.Lookup(lookupCtx, event.IP)
	if err != nil {
		if !errors.Is(err, geoip.ErrUnavailable) {
			p.metrics.GeoLookupFailed()
			p.logger.Debug("Geo lookup failed",
				slog.String("ip", event.IP),
				slog.Any("error", err))
		}
		return
	}
	if place == nil {
		return
	}

	location := &events.Location{PlaceName: place.PlaceName(), DisplayName: place.City}
	if location.DisplayName == "" {
		location.DisplayName = place.CountryName
	}
	if place.Latitude != 0 || place.Longitude != 0 {
		lat, lng := place.Latitude, place.Longitude
		location.Latitude, location.Longitude = &lat, &lng
	}
	if location.Valid() {
		event.Location = location
	}
}

// write runs the independent keyed writes concurrently and fails if any of
// them failed.
func (p *Pipeline) write(ctx context.Context, event *events.CanonicalEvent) error {
	var tasks []async.Task

	if event.Domain != "" {
		tasks = append(tasks, async.Task{Name: "ensure_domain", Execute: func(ctx context.Context) error {
			return p.repo.EnsureDomain(ctx, event.Domain, event.Timestamp)
		}})
	}
	if event.Fingerprint != "" {
		tasks = append(tasks, async.Task{Name: "upsert_user", Execute: func(ctx context.Context) error {
			return p.repo.UpsertUser(ctx, store.VisitFromEvent(event))
		}})
		if event.IP != "" {
			patch := store.PatchFromEvent(event)
			if referrers.IsInternal(patch.Referrer, event.Domain) {
				patch.Referrer = ""
			}
			tasks = append(tasks, async.Task{Name: "merge_detail", Execute: func(ctx context.Context) error {
				return p.repo.MergeDetail(ctx, patch)
			}})
		}
	}
	if event.Type.Durable() {
		tasks = append(tasks, async.Task{Name: "append_event", Execute: func(ctx context.Context) error {
			return p.repo.AppendEvent(ctx, event)
		}})
	}
	if len(tasks) == 0 {
		return nil
	}

	results := p.pool.Execute(ctx, tasks)
	for _, task := range tasks {
		if res := results[task.Name]; res.Err != nil {
			p.metrics.WriteFailed(task.Name)
			p.logger.Error("Repository write failed",
				slog.String("op", task.Name),
				slog.String("event_id", event.ID),
				slog.Any("error", res.Err))
		}
	}
	if err := async.FirstError(tasks, results); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

func (p *Pipeline) updatePresence(ctx context.Context, event *events.CanonicalEvent) {
	if p.tracker == nil || event.Domain == "" || event.Fingerprint == "" {
		return
	}

	var err error
	switch {
	case event.Type.MarksActivity():
		err = p.tracker.RecordActivity(ctx, event.Domain, event.Fingerprint, event.Timestamp)
	case event.Type == events.TypePageExit:
		err = p.tracker.Remove(ctx, event.Domain, event.Fingerprint, event.Timestamp)
	default:
		return
	}
	if err != nil {
		p.logger.Warn("Presence update failed",
			slog.String("domain", event.Domain),
			slog.String("fingerprint", event.Fingerprint),
			slog.Any("error", err))
	}
}
