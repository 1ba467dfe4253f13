package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"footprint/internal/events"
)

const (
	msgEventAccepted  = "Event accepted"
	errInvalidRequest = "Invalid request"
)

// CollectAction ingests one tracker event. Malformed events are acknowledged
// and dropped; only a failed write is reported to the client.
func (h *Handlers) CollectAction(ctx *cartridge.Context) error {
	var raw events.RawEvent
	if err := json.Unmarshal(ctx.Body(), &raw); err != nil {
		ctx.Logger.Debug("Failed to parse event body", slog.Any("error", err))
		return errorResponse(ctx.Ctx, http.StatusBadRequest, errInvalidRequest, "INVALID_JSON")
	}

	result, err := h.deps.Ingest.Ingest(ctx.UserContext(), &raw, h.requestMeta(ctx.Ctx))
	if err != nil {
		ctx.Logger.Error("Failed to collect event",
			slog.String("type", raw.Type),
			slog.String("domain", raw.Domain),
			slog.Any("error", err))
		return errorResponse(ctx.Ctx, http.StatusInternalServerError, "Failed to collect event", "COLLECTION_ERROR")
	}

	response := fiber.Map{
		"message": msgEventAccepted,
		"status":  http.StatusAccepted,
		"stored":  result.Stored,
	}
	if result.Event != nil {
		response["id"] = result.Event.ID
		response["fingerprint"] = result.Event.Fingerprint
		if result.Event.Issued != nil {
			response["record"] = result.Event.Issued
		}
	}
	return ctx.Status(http.StatusAccepted).JSON(response)
}

// CollectBeaconAction handles events sent via navigator.sendBeacon, which
// cannot read the response, so every outcome is a bare 202.
func (h *Handlers) CollectBeaconAction(ctx *cartridge.Context) error {
	var raw events.RawEvent
	if err := json.Unmarshal(ctx.Body(), &raw); err != nil {
		ctx.Logger.Debug("Failed to parse beacon body", slog.Any("error", err))
		return ctx.SendStatus(http.StatusAccepted)
	}

	if _, err := h.deps.Ingest.Ingest(ctx.UserContext(), &raw, h.requestMeta(ctx.Ctx)); err != nil {
		ctx.Logger.Error("Failed to collect beacon event",
			slog.String("type", raw.Type),
			slog.Any("error", err))
	}
	return ctx.SendStatus(http.StatusAccepted)
}

func (h *Handlers) requestMeta(c *fiber.Ctx) events.Meta {
	return events.Meta{
		IP:         getClientIP(c),
		UserAgent:  requestUserAgent(c),
		ReceivedAt: h.now(),
	}
}

func requestUserAgent(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-User-Agent"); forwarded != "" {
		return forwarded
	}
	return c.Get("User-Agent")
}
