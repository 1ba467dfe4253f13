package v1

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"footprint/internal/events"
)

// PresenceAction reports how many visitors are online on a domain.
func (h *Handlers) PresenceAction(ctx *cartridge.Context) error {
	domain := events.NormalizeDomain(ctx.Query("domain"))
	if domain == "" {
		return missingDomain(ctx.Ctx)
	}

	count, err := h.deps.Presence.OnlineCount(ctx.UserContext(), domain, h.now())
	if err != nil {
		ctx.Logger.Error("Failed to count online visitors",
			slog.String("domain", domain),
			slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load presence")
	}

	return ctx.JSON(fiber.Map{
		"domain":    domain,
		"activeNow": count,
	})
}

// OnlineVisitorsAction lists the fingerprints online on a domain.
func (h *Handlers) OnlineVisitorsAction(ctx *cartridge.Context) error {
	domain := events.NormalizeDomain(ctx.Query("domain"))
	if domain == "" {
		return missingDomain(ctx.Ctx)
	}

	fingerprints, err := h.deps.Presence.OnlineFingerprints(ctx.UserContext(), domain, h.now())
	if err != nil {
		ctx.Logger.Error("Failed to list online visitors",
			slog.String("domain", domain),
			slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load presence")
	}
	if fingerprints == nil {
		fingerprints = []string{}
	}
	return ctx.JSON(fiber.Map{
		"domain":             domain,
		"onlineFingerprints": fingerprints,
	})
}
