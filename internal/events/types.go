package events

import (
	"encoding/json"
	"strings"
)

// EventType is the declared kind of a client action.
type EventType string

const (
	TypeView      EventType = "view"
	TypeClick     EventType = "click"
	TypeInput     EventType = "input"
	TypeSubmit    EventType = "submit"
	TypeHeartbeat EventType = "heartbeat"
	// TypePageExit is sent from pagehide/beforeunload. It only removes the
	// visitor from presence and is never stored.
	TypePageExit EventType = "page_exit"
)

// Known reports whether t is one of the five tracked action types.
func (t EventType) Known() bool {
	switch t {
	case TypeView, TypeClick, TypeInput, TypeSubmit, TypeHeartbeat:
		return true
	}
	return false
}

// OtherLabel stands in for every type that is not tracked.
const OtherLabel = "other"

// Label is t for tracked types and page exits, and OtherLabel for anything
// else a client made up. It bounds the values used as metric labels.
func (t EventType) Label() string {
	if t.Known() || t == TypePageExit {
		return string(t)
	}
	return OtherLabel
}

// Durable reports whether events of type t are appended to the event log.
func (t EventType) Durable() bool {
	return t != TypeHeartbeat && t != TypePageExit
}

// Aggregatable reports whether events of type t feed statistics.
func (t EventType) Aggregatable() bool {
	return t.Known() && t != TypeHeartbeat
}

// MarksActivity reports whether t refreshes a visitor's last-seen time.
func (t EventType) MarksActivity() bool {
	return t == TypeView || t == TypeHeartbeat
}

// Values clients write when a lookup did not succeed.
var failureSentinels = map[string]bool{
	"":          true,
	"unknown":   true,
	"failed":    true,
	"null":      true,
	"undefined": true,
	"获取失败":      true,
}

// IsSentinel reports whether v carries no information.
func IsSentinel(v string) bool {
	return failureSentinels[strings.ToLower(strings.TrimSpace(v))]
}

// BrowserInfo is a browser name and version pair.
type BrowserInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Valid reports whether the name is informative.
func (b BrowserInfo) Valid() bool {
	return !IsSentinel(b.Name)
}

// UnmarshalJSON accepts an object or a bare browser name.
func (b *BrowserInfo) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*b = BrowserInfo{Name: name}
		return nil
	}
	type plain BrowserInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = BrowserInfo(p)
	return nil
}

// Location is where a visitor was resolved to, as a place name and/or
// coordinates.
type Location struct {
	PlaceName   string   `json:"placeName,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// UnmarshalJSON accepts a place-name string or an object.
func (l *Location) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*l = Location{PlaceName: name}
		return nil
	}
	type plain Location
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Location(p)
	return nil
}

// Valid reports whether the location carries a usable place or coordinates.
func (l *Location) Valid() bool {
	if l == nil {
		return false
	}
	if l.Latitude != nil && l.Longitude != nil {
		return true
	}
	return !IsSentinel(l.PlaceName) || !IsSentinel(l.DisplayName)
}
