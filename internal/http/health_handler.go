// Package http holds the operational endpoints served next to the API.
package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"footprint/internal/presence"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus represents the health check response
type HealthStatus struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	DBStatus       string    `json:"db_status"`
	PresenceStatus string    `json:"presence_status"`
}

// HealthIndexAction reports database and presence store reachability. A
// failing dependency degrades the status but the endpoint still answers 200,
// so the process is not restarted for an outage it cannot fix.
func HealthIndexAction(tracker presence.Tracker) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		health := HealthStatus{
			Status:         "ok",
			Timestamp:      time.Now(),
			DBStatus:       checkDatabase(ctx),
			PresenceStatus: checkPresence(ctx, tracker),
		}
		if health.DBStatus != "ok" || health.PresenceStatus != "ok" {
			health.Status = "degraded"
		}
		return ctx.JSON(health)
	}
}

func checkDatabase(ctx *cartridge.Context) string {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		ctx.Logger.Error("Database connection unavailable")
		return "error"
	}
	sqlDB, err := db.DB()
	if err != nil {
		ctx.Logger.Error("Database connection error", slog.Any("error", err))
		return "error"
	}
	if err := sqlDB.Ping(); err != nil {
		ctx.Logger.Error("Database ping failed", slog.Any("error", err))
		return "error"
	}
	return "ok"
}

func checkPresence(ctx *cartridge.Context, tracker presence.Tracker) string {
	pinger, ok := tracker.(presence.Pinger)
	if !ok {
		return "ok"
	}
	pingCtx, cancel := context.WithTimeout(ctx.UserContext(), healthCheckTimeout)
	defer cancel()
	if err := pinger.Ping(pingCtx); err != nil {
		ctx.Logger.Error("Presence store ping failed", slog.Any("error", err))
		return "error"
	}
	return "ok"
}
