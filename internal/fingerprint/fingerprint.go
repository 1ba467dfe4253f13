// Package fingerprint derives short, stable visitor identifiers from client
// signals and decides when a stored identifier must rotate.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"
	"unicode/utf16"
)

const (
	DefaultTTL        = 30 * 24 * time.Hour
	DefaultDriftRatio = 0.3

	idLength = 8
	djb2Seed = 5381
)

// Signals are the stable client properties a fingerprint is built from.
type Signals struct {
	UserAgent           string  `json:"userAgent"`
	Language            string  `json:"language"`
	Platform            string  `json:"platform"`
	ScreenResolution    string  `json:"screenResolution"`
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemory        float64 `json:"deviceMemory"`
	Timezone            string  `json:"timezone"`
	// IP is the truncated network prefix. It feeds the hash but is not
	// compared for drift.
	IP string `json:"ip,omitempty"`
}

// trackedFields lists the signals compared for drift, in a fixed order.
func (s Signals) trackedFields() [7]string {
	return [7]string{
		s.UserAgent,
		s.Language,
		s.Platform,
		s.ScreenResolution,
		fmt.Sprint(s.HardwareConcurrency),
		fmt.Sprint(s.DeviceMemory),
		s.Timezone,
	}
}

// canonical serializes the signals as JSON with lexically sorted keys.
func (s Signals) canonical() string {
	fields := map[string]any{
		"userAgent":           s.UserAgent,
		"language":            s.Language,
		"platform":            s.Platform,
		"screenResolution":    s.ScreenResolution,
		"hardwareConcurrency": s.HardwareConcurrency,
		"deviceMemory":        s.DeviceMemory,
		"timezone":            s.Timezone,
		"ip":                  s.IP,
	}
	// encoding/json writes map keys in sorted order. Like JSON.stringify it
	// must leave <, > and & alone.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(fields)
	return strings.TrimSuffix(buf.String(), "\n")
}

// Drift is the fraction of tracked signals that differ between a and b.
func Drift(a, b Signals) float64 {
	af, bf := a.trackedFields(), b.trackedFields()
	changed := 0
	for i := range af {
		if af[i] != bf[i] {
			changed++
		}
	}
	return float64(changed) / float64(len(af))
}

// Compute hashes the canonical form of signals into an 8-character
// lowercase hex id. It is deterministic and stateless.
func Compute(signals Signals) string {
	return Hash(signals.canonical())
}

// Hash is djb2 (h = h*33 + c) over the UTF-16 code units of s with 32-bit
// signed wraparound, rendered as the zero-padded hex of its absolute value.
func Hash(s string) string {
	h := int32(djb2Seed)
	for _, unit := range utf16.Encode([]rune(s)) {
		h = (h << 5) + h + int32(unit)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return fmt.Sprintf("%0*x", idLength, abs)[:idLength]
}

// TruncateIP keeps the first three IPv4 octets or the first four IPv6
// groups. Unparsable input yields an empty string.
func TruncateIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d", b[0], b[1], b[2])
	}
	b := addr.As16()
	return fmt.Sprintf("%x:%x:%x:%x",
		uint16(b[0])<<8|uint16(b[1]),
		uint16(b[2])<<8|uint16(b[3]),
		uint16(b[4])<<8|uint16(b[5]),
		uint16(b[6])<<8|uint16(b[7]))
}

// ValidID reports whether id has the shape Compute produces.
func ValidID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
