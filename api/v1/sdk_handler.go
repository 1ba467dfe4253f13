package v1

import (
	"bytes"
	_ "embed"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

//go:embed sdk.js
var sdkTemplate string

var sdkTmpl = template.Must(template.New("sdk.js").Parse(sdkTemplate))

// GetSDKAction serves the tracking snippet pointed at this server.
func (h *Handlers) GetSDKAction(ctx *cartridge.Context) error {
	var buf bytes.Buffer
	data := map[string]any{
		"BaseURL":         ctx.BaseURL(),
		"HeartbeatMillis": h.deps.HeartbeatInterval.Milliseconds(),
	}
	if err := sdkTmpl.Execute(&buf, data); err != nil {
		ctx.Logger.Error("Failed to render SDK template", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := generateETag(content)

	if ctx.Get("If-None-Match") == etag {
		ctx.Logger.Debug("ETag match, returning 304", slog.String("etag", etag))
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set("Content-Type", "application/javascript")
	ctx.Set("Cache-Control", "public, max-age=3600")
	ctx.Set("ETag", etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}
