package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "footprint/api/v1"
	"footprint/internal/http"
	"footprint/internal/http/middleware"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// All public endpoints share this permissive CORS setup for cross-origin access.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// NewHandlers builds the API handlers over services.
func NewHandlers(services *Services) *v1.Handlers {
	cfg := services.Config
	return v1.NewHandlers(v1.Deps{
		Ingest:            services.Pipeline,
		Stats:             services.Analytics,
		Presence:          services.Presence,
		Repository:        services.Repository,
		Live:              services.Broker,
		Metrics:           services.Metrics,
		Classifier:        services.Classifier,
		Location:          cfg.Location(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	})
}

// MountAppRoutes returns the route mount function for services.
func MountAppRoutes(services *Services) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		mountRoutes(srv, services)
	}
}

func mountRoutes(srv *cartridge.Server, services *Services) {
	cfg := services.Config
	handlers := NewHandlers(services)

	// ============================================
	// PUBLIC ENDPOINT PROTECTION
	// Tracker endpoints get rate limiting (production only) and permissive
	// CORS for cross-origin collection.
	// ============================================

	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70/min per IP covers a page view plus heartbeats and clicks
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	// CORS runs first ensuring 403 responses have CORS headers
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Read-only public endpoints, no Sec-Fetch-Site needed for GET-only
	publicReadConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// Operator endpoints are called from scripts and dashboards with a
	// bearer key rather than from tracked pages.
	adminConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			middleware.AdminKeyAuth(cfg.AdminKeyHash, cfg.IsProduction(), services.Logger),
		},
	}

	opsConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === OPERATIONAL ROUTES ===
	health := http.HealthIndexAction(services.Presence)
	srv.Get("/_health", health, opsConfig)
	srv.Head("/_health", health, opsConfig)

	metricsHandler := adaptor.HTTPHandler(services.Metrics.Handler())
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return metricsHandler(ctx.Ctx)
	}, opsConfig)

	// === COLLECTION ROUTES ===
	srv.Post("/api/collect", handlers.CollectAction, publicAPIConfig)
	srv.Options("/api/collect", preflight, publicAPIConfig)
	srv.Post("/api/collect/beacon", handlers.CollectBeaconAction, publicAPIConfig)
	srv.Options("/api/collect/beacon", preflight, publicAPIConfig)

	// === SDK ROUTES ===
	srv.Get("/sdk.js", handlers.GetSDKAction, publicReadConfig)

	// === PUBLIC QUERY ROUTES ===
	srv.Get("/api/stats", handlers.StatsAction, publicReadConfig)
	srv.Get("/api/presence", handlers.PresenceAction, publicReadConfig)
	srv.Get("/api/domains", handlers.ListDomainsAction, publicReadConfig)
	srv.Get("/api/detect", handlers.DetectAction, publicReadConfig)

	// === ADMIN API ROUTES ===
	// These expose fingerprints and addresses.
	srv.Get("/api/presence/online", handlers.OnlineVisitorsAction, adminConfig)
	srv.Post("/api/notes", handlers.UpdateNotesAction, adminConfig)
	srv.Get("/api/visitors", handlers.ListVisitorsAction, adminConfig)
	srv.Get("/api/visitors/:fingerprint", handlers.GetVisitorAction, adminConfig)
	srv.Get("/api/recent", handlers.RecentEventsAction, adminConfig)
	srv.Get("/api/live", handlers.LiveAction, adminConfig)

	// Preflight never carries credentials
	srv.Options("/api/*", preflight, publicReadConfig)
}
