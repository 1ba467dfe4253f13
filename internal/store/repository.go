// Package store is the keyed storage behind ingestion and queries: domains,
// visitors, their device profiles and the append-only event log.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"footprint/internal/events"
	"footprint/internal/models"
	"footprint/internal/pkg/user_agent"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Repository is implemented by every storage adapter. Writes are atomic
// upserts keyed by domain, fingerprint or (fingerprint, ip), so concurrent
// ingestion needs no locking above this layer.
type Repository interface {
	// EnsureDomain inserts domain unless it already exists.
	EnsureDomain(ctx context.Context, domain string, at time.Time) error
	// UpsertUser creates the visitor on first sight. When visit.Touch is set
	// it also moves ip and lastSeen forward, never backward.
	UpsertUser(ctx context.Context, visit UserVisit) error
	// MergeDetail creates or field-merges the (fingerprint, ip) profile.
	// Empty patch fields leave stored values alone; notes are never touched.
	MergeDetail(ctx context.Context, patch DetailPatch) error
	// AppendEvent stores a durable event. Heartbeats and exits are ignored.
	AppendEvent(ctx context.Context, event *events.CanonicalEvent) error
	// UpdateNotes sets the notes of one detail directly.
	UpdateNotes(ctx context.Context, edit NotesEdit) (*models.Detail, error)

	FindUser(ctx context.Context, fingerprint string) (*models.User, error)
	ListUsers(ctx context.Context, domain string) ([]models.User, error)
	ActiveUsers(ctx context.Context, since time.Time) ([]models.User, error)
	ListDetails(ctx context.Context, fingerprint string) ([]models.Detail, error)
	ListDomains(ctx context.Context) ([]models.Domain, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]models.Event, error)
	// DeleteEventsBefore removes at most limit events older than cutoff and
	// reports how many were removed.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// UserVisit is one observation of a visitor.
type UserVisit struct {
	Fingerprint string
	Domain      string
	IP          string
	Seen        time.Time
	Touch       bool
}

// DetailPatch carries the informative fields of one event for a profile.
type DetailPatch struct {
	Fingerprint    string
	IP             string
	OS             string
	BrowserName    string
	BrowserVersion string
	Timezone       string
	Language       string
	Referrer       string
	Location       *events.Location
	Seen           time.Time
}

// NotesEdit addresses a detail by id, or by (fingerprint, ip) when the id is
// zero.
type NotesEdit struct {
	DetailID    uint
	Fingerprint string
	IP          string
	Notes       string
}

// EventFilter selects events. Zero values do not filter; From is inclusive
// and To exclusive.
type EventFilter struct {
	Domain      string
	Fingerprint string
	From        time.Time
	To          time.Time
	Limit       int
	Newest      bool
}

// VisitFromEvent is the user observation carried by event.
func VisitFromEvent(event *events.CanonicalEvent) UserVisit {
	return UserVisit{
		Fingerprint: event.Fingerprint,
		Domain:      event.Domain,
		IP:          event.IP,
		Seen:        event.Timestamp.UTC(),
		Touch:       event.Type.MarksActivity(),
	}
}

// PatchFromEvent extracts the detail fields of event, dropping failure
// sentinels so they never overwrite stored data.
func PatchFromEvent(event *events.CanonicalEvent) DetailPatch {
	patch := DetailPatch{
		Fingerprint: event.Fingerprint,
		IP:          event.IP,
		OS:          informative(event.OS),
		Timezone:    informative(event.Timezone),
		Language:    informative(event.Language),
		Referrer:    informative(event.Referrer),
		Seen:        event.Timestamp.UTC(),
	}
	if event.Browser.Valid() {
		patch.BrowserName = strings.TrimSpace(event.Browser.Name)
		patch.BrowserVersion = informative(event.Browser.Version)
	}
	if event.Location.Valid() {
		loc := *event.Location
		patch.Location = &loc
	}
	return patch
}

func informative(v string) string {
	if events.IsSentinel(v) {
		return ""
	}
	return strings.TrimSpace(v)
}

// RecordFromEvent maps a canonical event to its stored row.
func RecordFromEvent(event *events.CanonicalEvent) (*models.Event, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	location, err := locationJSON(event.Location)
	if err != nil {
		return nil, err
	}
	return &models.Event{
		ID:             event.ID,
		Domain:         event.Domain,
		Fingerprint:    event.Fingerprint,
		Type:           string(event.Type),
		TypeData:       models.JSON(data),
		URL:            event.URL,
		Referrer:       event.Referrer,
		IP:             event.IP,
		UserAgent:      event.UserAgent,
		BrowserName:    event.Browser.Name,
		BrowserVersion: event.Browser.Version,
		OS:             event.OS,
		OSVersion:      event.OSVersion,
		Device:         string(event.Device),
		Bot:            event.Bot,
		Timezone:       event.Timezone,
		Language:       event.Language,
		Location:       location,
		Timestamp:      event.Timestamp.UTC(),
	}, nil
}

// EventFromRecord restores a canonical event from its row, with the timestamp
// in loc.
func EventFromRecord(record models.Event, loc *time.Location) (*events.CanonicalEvent, error) {
	eventType := events.EventType(record.Type)
	data, err := events.DecodeTypeData(eventType, json.RawMessage(record.TypeData))
	if err != nil {
		return nil, err
	}
	event := &events.CanonicalEvent{
		ID:          record.ID,
		Type:        eventType,
		Domain:      record.Domain,
		Fingerprint: record.Fingerprint,
		URL:         record.URL,
		Referrer:    record.Referrer,
		IP:          record.IP,
		UserAgent:   record.UserAgent,
		Browser:     events.BrowserInfo{Name: record.BrowserName, Version: record.BrowserVersion},
		OS:          record.OS,
		OSVersion:   record.OSVersion,
		Device:      user_agent.DeviceClass(record.Device),
		Bot:         record.Bot,
		Timezone:    record.Timezone,
		Language:    record.Language,
		Data:        data,
		Timestamp:   record.Timestamp.In(loc),
	}
	if len(record.Location) > 0 {
		var location events.Location
		if err := json.Unmarshal(record.Location, &location); err == nil {
			event.Location = &location
		}
	}
	return event, nil
}

func locationJSON(location *events.Location) (models.JSON, error) {
	if location == nil {
		return nil, nil
	}
	data, err := json.Marshal(location)
	if err != nil {
		return nil, err
	}
	return models.JSON(data), nil
}
