package v1

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"footprint/internal/pkg/user_agent"
)

// DetectAction classifies the ua query parameter, or the caller's own user
// agent when it is absent.
func (h *Handlers) DetectAction(ctx *cartridge.Context) error {
	ua := strings.TrimSpace(ctx.Query("ua"))
	if ua == "" {
		ua = requestUserAgent(ctx.Ctx)
	}
	hints := user_agent.Hints{MaxTouchPoints: ctx.QueryInt("maxTouchPoints", 0)}

	return ctx.JSON(fiber.Map{
		"userAgent":      ua,
		"classification": h.deps.Classifier.ClassifyWithHints(ua, hints),
	})
}
