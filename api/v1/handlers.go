// Package v1 holds the HTTP handlers of the footprint API.
package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"footprint/internal/analytics"
	"footprint/internal/events"
	"footprint/internal/ingest"
	"footprint/internal/metrics"
	"footprint/internal/pkg/user_agent"
	"footprint/internal/presence"
	"footprint/internal/store"
)

// Ingester applies one raw event.
type Ingester interface {
	Ingest(ctx context.Context, raw *events.RawEvent, meta events.Meta) (ingest.Result, error)
}

// StatsQuerier answers aggregate queries.
type StatsQuerier interface {
	Query(ctx context.Context, q analytics.Query) (*analytics.Report, error)
}

// Subscriber streams canonical events for one domain.
type Subscriber interface {
	Subscribe(domain string) (<-chan *events.CanonicalEvent, func())
}

// Deps are the components the handlers read and write through.
type Deps struct {
	Ingest     Ingester
	Stats      StatsQuerier
	Presence   presence.Tracker
	Repository store.Repository
	Live       Subscriber
	Metrics    *metrics.Metrics
	Classifier *user_agent.Classifier
	// Location is the zone timestamps are rendered in.
	Location *time.Location
	Now      func() time.Time
	// LiveKeepAlive is the interval between comment lines on idle streams.
	LiveKeepAlive time.Duration
	// HeartbeatInterval is rendered into the tracker.
	HeartbeatInterval time.Duration
}

// Handlers exposes the API endpoints as cartridge handlers.
type Handlers struct {
	deps Deps
}

func NewHandlers(deps Deps) *Handlers {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Classifier == nil {
		deps.Classifier = user_agent.Default()
	}
	if deps.LiveKeepAlive <= 0 {
		deps.LiveKeepAlive = 15 * time.Second
	}
	if deps.HeartbeatInterval <= 0 {
		deps.HeartbeatInterval = 90 * time.Second
	}
	return &Handlers{deps: deps}
}

func (h *Handlers) now() time.Time {
	return h.deps.Now().In(h.deps.Location)
}

func errorResponse(c *fiber.Ctx, status int, message, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

func missingDomain(c *fiber.Ctx) error {
	return errorResponse(c, http.StatusBadRequest, "domain is required", "MISSING_DOMAIN")
}

func internalError(c *fiber.Ctx, message string) error {
	return errorResponse(c, http.StatusInternalServerError, message, "INTERNAL_ERROR")
}
