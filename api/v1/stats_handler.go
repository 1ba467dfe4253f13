package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/karloscodes/cartridge"

	"footprint/internal/analytics"
	"footprint/internal/events"
)

// StatsAction aggregates a domain's events over a day window. Explicit
// startDate/endDate win over days.
func (h *Handlers) StatsAction(ctx *cartridge.Context) error {
	query := analytics.Query{
		Domain:    events.NormalizeDomain(ctx.Query("domain")),
		StartDate: strings.TrimSpace(ctx.Query("startDate")),
		EndDate:   strings.TrimSpace(ctx.Query("endDate")),
	}
	if days := strings.TrimSpace(ctx.Query("days")); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return errorResponse(ctx.Ctx, http.StatusBadRequest, "days must be a positive integer", "INVALID_WINDOW")
		}
		query.Days = n
	}

	report, err := h.deps.Stats.Query(ctx.UserContext(), query)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidWindow) {
			return errorResponse(ctx.Ctx, http.StatusBadRequest, err.Error(), "INVALID_WINDOW")
		}
		ctx.Logger.Error("Failed to query stats",
			slog.String("domain", query.Domain),
			slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load stats")
	}
	return ctx.JSON(report)
}
