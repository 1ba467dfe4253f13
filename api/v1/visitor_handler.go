package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"footprint/internal/events"
	"footprint/internal/models"
	"footprint/internal/store"
	"footprint/internal/visitors"
)

const (
	visitorEventLimit  = 25
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type domainView struct {
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
	ActiveNow int       `json:"activeNow"`
	Status    string    `json:"status"`
}

type visitorView struct {
	Fingerprint string    `json:"fingerprint"`
	Alias       string    `json:"alias"`
	Domain      string    `json:"domain"`
	IP          string    `json:"ip"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeen    time.Time `json:"lastSeen"`
	Online      bool      `json:"online"`
}

// ListDomainsAction lists tracked domains with their current online count.
func (h *Handlers) ListDomainsAction(ctx *cartridge.Context) error {
	domains, err := h.deps.Repository.ListDomains(ctx.UserContext())
	if err != nil {
		ctx.Logger.Error("Failed to list domains", slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load domains")
	}

	now := h.now()
	views := make([]domainView, 0, len(domains))
	for _, d := range domains {
		count, err := h.deps.Presence.OnlineCount(ctx.UserContext(), d.Domain, now)
		if err != nil {
			ctx.Logger.Warn("Failed to count online visitors",
				slog.String("domain", d.Domain),
				slog.Any("error", err))
		}
		h.deps.Metrics.SetOnline(d.Domain, count)

		status := "inactive"
		if count > 0 {
			status = "active"
		}
		views = append(views, domainView{
			Domain:    d.Domain,
			CreatedAt: d.CreatedAt.In(h.deps.Location),
			ActiveNow: count,
			Status:    status,
		})
	}
	return ctx.JSON(fiber.Map{"domains": views})
}

// ListVisitorsAction lists the visitors of a domain, most recent first.
func (h *Handlers) ListVisitorsAction(ctx *cartridge.Context) error {
	domain := events.NormalizeDomain(ctx.Query("domain"))
	if domain == "" {
		return missingDomain(ctx.Ctx)
	}

	users, err := h.deps.Repository.ListUsers(ctx.UserContext(), domain)
	if err != nil {
		ctx.Logger.Error("Failed to list visitors",
			slog.String("domain", domain),
			slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load visitors")
	}

	online, err := h.onlineSet(ctx, domain)
	if err != nil {
		ctx.Logger.Warn("Failed to load online visitors",
			slog.String("domain", domain),
			slog.Any("error", err))
	}

	views := make([]visitorView, 0, len(users))
	for _, u := range users {
		views = append(views, h.visitorView(u, online[u.Fingerprint]))
	}
	return ctx.JSON(fiber.Map{
		"domain":   domain,
		"visitors": views,
	})
}

const maxFingerprintLength = 128

// GetVisitorAction returns one visitor with its device profiles and latest
// events.
func (h *Handlers) GetVisitorAction(ctx *cartridge.Context) error {
	// Clients may send their own ids, so any id the collector would have
	// stored is accepted here.
	fp := strings.TrimSpace(ctx.Params("fingerprint"))
	if fp == "" || len(fp) > maxFingerprintLength {
		return errorResponse(ctx.Ctx, http.StatusBadRequest, "Invalid fingerprint", "INVALID_FINGERPRINT")
	}

	user, err := h.deps.Repository.FindUser(ctx.UserContext(), fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorResponse(ctx.Ctx, http.StatusNotFound, "Visitor not found", "VISITOR_NOT_FOUND")
		}
		ctx.Logger.Error("Failed to load visitor", slog.String("fingerprint", fp), slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load visitor")
	}

	details, err := h.deps.Repository.ListDetails(ctx.UserContext(), fp)
	if err != nil {
		ctx.Logger.Error("Failed to load visitor details", slog.String("fingerprint", fp), slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load visitor")
	}

	records, err := h.deps.Repository.ListEvents(ctx.UserContext(), store.EventFilter{
		Fingerprint: fp,
		Limit:       visitorEventLimit,
		Newest:      true,
	})
	if err != nil {
		ctx.Logger.Error("Failed to load visitor events", slog.String("fingerprint", fp), slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load visitor")
	}

	online := false
	if user.Domain != "" {
		online, err = h.deps.Presence.IsOnline(ctx.UserContext(), user.Domain, fp, h.now())
		if err != nil {
			ctx.Logger.Warn("Failed to check visitor presence", slog.String("fingerprint", fp), slog.Any("error", err))
		}
	}

	return ctx.JSON(fiber.Map{
		"visitor":      h.visitorView(*user, online),
		"details":      h.localizeDetails(details),
		"recentEvents": h.canonicalEvents(ctx, records),
	})
}

// RecentEventsAction returns the latest durable events, optionally for one
// domain.
func (h *Handlers) RecentEventsAction(ctx *cartridge.Context) error {
	limit := ctx.QueryInt("limit", defaultRecentLimit)
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	domain := events.NormalizeDomain(ctx.Query("domain"))

	records, err := h.deps.Repository.ListEvents(ctx.UserContext(), store.EventFilter{
		Domain: domain,
		Limit:  limit,
		Newest: true,
	})
	if err != nil {
		ctx.Logger.Error("Failed to load recent events", slog.String("domain", domain), slog.Any("error", err))
		return internalError(ctx.Ctx, "Failed to load recent events")
	}
	return ctx.JSON(fiber.Map{"events": h.canonicalEvents(ctx, records)})
}

func (h *Handlers) onlineSet(ctx *cartridge.Context, domain string) (map[string]bool, error) {
	fingerprints, err := h.deps.Presence.OnlineFingerprints(ctx.UserContext(), domain, h.now())
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(fingerprints))
	for _, fp := range fingerprints {
		set[fp] = true
	}
	return set, nil
}

func (h *Handlers) visitorView(u models.User, online bool) visitorView {
	return visitorView{
		Fingerprint: u.Fingerprint,
		Alias:       visitors.Alias(u.Fingerprint),
		Domain:      u.Domain,
		IP:          u.IP,
		CreatedAt:   u.CreatedAt.In(h.deps.Location),
		LastSeen:    u.LastSeen.In(h.deps.Location),
		Online:      online,
	}
}

func (h *Handlers) localizeDetails(details []models.Detail) []models.Detail {
	out := make([]models.Detail, len(details))
	for i, d := range details {
		d.CreatedAt = d.CreatedAt.In(h.deps.Location)
		d.LastSeen = d.LastSeen.In(h.deps.Location)
		out[i] = d
	}
	return out
}

func (h *Handlers) canonicalEvents(ctx *cartridge.Context, records []models.Event) []*events.CanonicalEvent {
	out := make([]*events.CanonicalEvent, 0, len(records))
	for _, record := range records {
		event, err := store.EventFromRecord(record, h.deps.Location)
		if err != nil {
			ctx.Logger.Warn("Skipping unreadable event", slog.String("id", record.ID), slog.Any("error", err))
			continue
		}
		out = append(out, event)
	}
	return out
}
