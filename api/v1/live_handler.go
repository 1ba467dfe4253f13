package v1

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/valyala/fasthttp"

	"footprint/internal/events"
)

// LiveAction streams a domain's normalized events as server-sent events
// until the client disconnects or the broker shuts down.
func (h *Handlers) LiveAction(ctx *cartridge.Context) error {
	domain := events.NormalizeDomain(ctx.Query("domain"))
	if domain == "" {
		return missingDomain(ctx.Ctx)
	}

	stream, cancel := h.deps.Live.Subscribe(domain)
	logger := ctx.Logger.With(slog.String("domain", domain))
	keepAlive := h.deps.LiveKeepAlive

	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	logger.Debug("Live subscriber connected")
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		writeEventStream(w, stream, keepAlive, logger)
		logger.Debug("Live subscriber disconnected")
	}))
	return nil
}

// writeEventStream copies events to w in text/event-stream framing. It
// returns when the channel closes or a flush fails.
func writeEventStream(w *bufio.Writer, stream <-chan *events.CanonicalEvent, keepAlive time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	if _, err := w.WriteString(": connected\n\n"); err != nil || w.Flush() != nil {
		return
	}

	for {
		select {
		case event, ok := <-stream:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Warn("Failed to encode live event", slog.String("id", event.ID), slog.Any("error", err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
		case <-ticker.C:
			w.WriteString(": keep-alive\n\n")
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
