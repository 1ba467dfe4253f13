package events

import (
	"encoding/json"
	"time"

	"footprint/internal/fingerprint"
	"footprint/internal/pkg/user_agent"
	"footprint/internal/visitors"
)

// RawEvent is the wire shape posted by the tracking snippet.
type RawEvent struct {
	Type        string          `json:"type"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	Domain      string          `json:"domain"`
	Fingerprint string          `json:"fingerprint"`
	URL         string          `json:"url,omitempty"`
	IP          string          `json:"ip,omitempty"`
	UserAgent   string          `json:"userAgent,omitempty"`
	Browser     *BrowserInfo    `json:"browser,omitempty"`
	OS          string          `json:"os,omitempty"`
	Timezone    string          `json:"timezone,omitempty"`
	Language    string          `json:"language,omitempty"`
	Location    *Location       `json:"location,omitempty"`
	Referrer    string          `json:"referrer,omitempty"`
	TypeData    json.RawMessage `json:"typeData,omitempty"`

	MaxTouchPoints int                  `json:"maxTouchPoints,omitempty"`
	Signals        *fingerprint.Signals `json:"signals,omitempty"`
	// Stored is the fingerprint record the client kept from an earlier
	// response. With Signals it lets the server keep or rotate the id.
	Stored *fingerprint.Record `json:"stored,omitempty"`
}

// Meta is what the transport knows about a request independent of its body.
type Meta struct {
	IP         string
	UserAgent  string
	ReceivedAt time.Time
}

// CanonicalEvent is a validated, classified event with a resolved timestamp.
type CanonicalEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Domain      string                 `json:"domain"`
	Fingerprint string                 `json:"fingerprint"`
	URL         string                 `json:"url,omitempty"`
	Referrer    string                 `json:"referrer,omitempty"`
	IP          string                 `json:"ip,omitempty"`
	UserAgent   string                 `json:"userAgent,omitempty"`
	Browser     BrowserInfo            `json:"browser"`
	OS          string                 `json:"os"`
	OSVersion   string                 `json:"osVersion"`
	Device      user_agent.DeviceClass `json:"device"`
	Bot         bool                   `json:"bot,omitempty"`
	Timezone    string                 `json:"timezone,omitempty"`
	Language    string                 `json:"language,omitempty"`
	Location    *Location              `json:"location,omitempty"`
	Data        TypeData               `json:"typeData"`
	// Timestamp is in the canonical zone; its instant is what gets stored.
	Timestamp time.Time `json:"timestamp"`
	// Issued is set when a new fingerprint record was generated for the
	// client to keep in place of its old one.
	Issued *fingerprint.Record `json:"-"`
}

// VisitorID is the identity used for unique-visitor counts.
func (e *CanonicalEvent) VisitorID() string {
	return visitors.Identifier(e.IP, e.UserAgent)
}
