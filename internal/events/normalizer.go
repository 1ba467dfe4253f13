package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"footprint/internal/fingerprint"
	"footprint/internal/pkg/user_agent"
)

// Timestamps below this many milliseconds are taken to be in seconds.
const secondsCutoff = 1e11

// MaxClockSkew is how far past the receive time a client clock may run
// before its timestamp is replaced by the receive time. Presence and
// lastSeen only move forward, so a future stamp would otherwise pin them.
const MaxClockSkew = 5 * time.Minute

// earliestTimestamp rejects stamps from clients with unset or broken clocks.
var earliestTimestamp = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

// Normalizer turns raw wire events into canonical events.
type Normalizer struct {
	classifier *user_agent.Classifier
	location   *time.Location
	generator  *fingerprint.Generator
	now        func() time.Time
}

// NewNormalizer returns a Normalizer that resolves timestamps into loc. A nil
// classifier uses the embedded rule table.
func NewNormalizer(classifier *user_agent.Classifier, loc *time.Location) *Normalizer {
	if classifier == nil {
		classifier = user_agent.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		classifier: classifier,
		location:   loc,
		generator:  fingerprint.NewGenerator(fingerprint.DefaultTTL, fingerprint.DefaultDriftRatio, slog.New(slog.DiscardHandler)),
		now:        time.Now,
	}
}

// WithGenerator sets the policy used to keep or rotate client fingerprints.
func (n *Normalizer) WithGenerator(g *fingerprint.Generator) *Normalizer {
	if g != nil {
		n.generator = g
	}
	return n
}

// Location is the canonical zone.
func (n *Normalizer) Location() *time.Location {
	return n.location
}

// Normalize validates raw and resolves its device facts and timestamp. The
// returned error is always a *ValidationError.
func (n *Normalizer) Normalize(raw *RawEvent, meta Meta) (*CanonicalEvent, error) {
	if raw == nil {
		return nil, missing("", "event")
	}

	eventType := EventType(strings.ToLower(strings.TrimSpace(raw.Type)))
	if eventType == "" {
		return nil, missing("", "type")
	}

	data, err := DecodeTypeData(eventType, raw.TypeData)
	if err != nil {
		return nil, &ValidationError{Type: eventType, Field: "typeData", Reason: "is malformed", Err: err}
	}

	received := meta.ReceivedAt
	if received.IsZero() {
		received = n.now()
	}
	timestamp, err := n.resolveTimestamp(raw.Timestamp, received)
	if err != nil {
		return nil, &ValidationError{Type: eventType, Field: "timestamp", Reason: "is not a recognised time", Err: err}
	}
	if timestamp.Before(earliestTimestamp) {
		return nil, &ValidationError{Type: eventType, Field: "timestamp", Reason: "is implausibly old"}
	}
	if timestamp.After(received.Add(MaxClockSkew)) {
		timestamp = received.In(n.location)
	}

	ip := firstNonEmpty(raw.IP, meta.IP)
	ua := firstNonEmpty(raw.UserAgent, meta.UserAgent)

	fp := strings.TrimSpace(raw.Fingerprint)
	var issued *fingerprint.Record
	// A bare fingerprint without its stored record is taken as given.
	if raw.Signals != nil && (fp == "" || raw.Stored != nil) {
		signals := *raw.Signals
		if signals.UserAgent == "" {
			signals.UserAgent = ua
		}
		if signals.IP == "" {
			signals.IP = fingerprint.TruncateIP(ip)
		}
		client := &fingerprint.ClientStore{Record: raw.Stored}
		fp = n.generator.GenerateAt(signals, client, received)
		if client.Issued() {
			issued = client.Record
		}
	}
	if fp == "" {
		return nil, missing(eventType, "fingerprint")
	}

	pageURL := strings.TrimSpace(raw.URL)
	if view, ok := data.(ViewData); ok && pageURL == "" {
		pageURL = strings.TrimSpace(view.PageURL)
	}

	if err := requireFields(eventType, data, pageURL); err != nil {
		return nil, err
	}

	domain := NormalizeDomain(raw.Domain)
	if domain == "" {
		domain = hostOf(pageURL)
	}
	// Heartbeats and exits may omit the domain; it is recovered from the
	// visitor record downstream.
	if domain == "" && eventType != TypeHeartbeat && eventType != TypePageExit {
		return nil, missing(eventType, "domain")
	}

	class := n.classifier.ClassifyWithHints(ua, user_agent.Hints{MaxTouchPoints: raw.MaxTouchPoints})

	browser := BrowserInfo{Name: class.BrowserName, Version: class.BrowserVersion}
	if browser.Name == user_agent.Unknown && raw.Browser != nil && raw.Browser.Valid() {
		browser = *raw.Browser
		if IsSentinel(browser.Version) {
			browser.Version = user_agent.Unknown
		}
	}

	osName := class.OSName
	if osName == user_agent.Unknown && !IsSentinel(raw.OS) {
		osName = strings.TrimSpace(raw.OS)
	}

	event := &CanonicalEvent{
		ID:          ulid.Make().String(),
		Type:        eventType,
		Domain:      domain,
		Fingerprint: fp,
		URL:         pageURL,
		Referrer:    strings.TrimSpace(raw.Referrer),
		IP:          ip,
		UserAgent:   ua,
		Browser:     browser,
		OS:          osName,
		OSVersion:   class.OSVersion,
		Device:      class.DeviceClass,
		Bot:         class.Bot,
		Data:        data,
		Timestamp:   timestamp,
		Issued:      issued,
	}
	if !IsSentinel(raw.Timezone) {
		event.Timezone = strings.TrimSpace(raw.Timezone)
	}
	if !IsSentinel(raw.Language) {
		event.Language = strings.TrimSpace(raw.Language)
	}
	if raw.Location.Valid() {
		loc := *raw.Location
		event.Location = &loc
	}

	return event, nil
}

func requireFields(eventType EventType, data TypeData, pageURL string) error {
	switch d := data.(type) {
	case ViewData:
		if pageURL == "" {
			return missing(eventType, "url")
		}
	case ClickData:
		if strings.TrimSpace(d.ElementType) == "" {
			return missing(eventType, "typeData.elementType")
		}
	case InputData:
		if strings.TrimSpace(d.ElementType) == "" && strings.TrimSpace(d.FieldName) == "" {
			return missing(eventType, "typeData.elementType")
		}
	case SubmitData:
		if strings.TrimSpace(d.FormID) == "" && strings.TrimSpace(d.FormAction) == "" {
			return missing(eventType, "typeData.formId")
		}
	case HeartbeatData, ExitData, RawData:
	default:
		return &ValidationError{Type: eventType, Field: "typeData", Reason: fmt.Sprintf("has unhandled variant %T", data)}
	}
	return nil
}

func (n *Normalizer) resolveTimestamp(raw json.RawMessage, received time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return received.In(n.location), nil
	}

	if raw[0] != '"' {
		var number json.Number
		if err := json.Unmarshal(raw, &number); err != nil {
			return time.Time{}, err
		}
		return n.fromEpoch(number.String())
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return received.In(n.location), nil
	}
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return n.fromEpoch(text)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, text, n.location); err == nil {
			return t.In(n.location), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", text)
}

func (n *Normalizer) fromEpoch(s string) (time.Time, error) {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if value <= 0 {
		return time.Time{}, fmt.Errorf("non-positive timestamp %s", s)
	}
	millis := int64(value)
	if value < secondsCutoff {
		millis = int64(value * 1000)
	}
	return time.UnixMilli(millis).In(n.location), nil
}

// NormalizeDomain lowercases domain and reduces a URL to its host.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return ""
	}
	if strings.Contains(domain, "://") {
		return hostOf(domain)
	}
	return strings.TrimSuffix(domain, "/")
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
