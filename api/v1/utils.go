package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// forwardingHeaders are consulted in order before the Forwarded header and
// the peer address. Each may carry a comma-separated chain.
var forwardingHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// thisNetwork is 0.0.0.0/8, which netip has no predicate for.
var thisNetwork = netip.MustParsePrefix("0.0.0.0/8")

// getClientIP returns the first public address found in proxy headers or the
// peer address. It returns "" when the request only carries private or
// loopback addresses, leaving identity to the user agent alone.
func getClientIP(c *fiber.Ctx) string {
	for _, header := range forwardingHeaders {
		if value := c.Get(header); value != "" {
			if addr, ok := pickPublic(strings.Split(value, ",")); ok {
				return addr.String()
			}
		}
	}

	if addr, ok := pickPublic(forwardedFor(c.Get("Forwarded"))); ok {
		return addr.String()
	}

	if addr, ok := parseAddr(c.Context().RemoteAddr().String()); ok && isPublic(addr) {
		return addr.String()
	}
	return ""
}

// isPublic rejects private, loopback, link-local and unspecified addresses.
func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsUnspecified() &&
		!thisNetwork.Contains(addr)
}

// pickPublic returns the first public IPv4 address in values, falling back to
// the first public IPv6 one.
func pickPublic(values []string) (netip.Addr, bool) {
	var v6 netip.Addr
	for _, raw := range values {
		addr, ok := parseAddr(raw)
		if !ok || !isPublic(addr) {
			continue
		}
		if addr.Is4() {
			return addr, true
		}
		if !v6.IsValid() {
			v6 = addr
		}
	}
	return v6, v6.IsValid()
}

// parseAddr accepts a bare address, an address with a port, a bracketed IPv6
// literal or a zoned IPv6 address, optionally quoted. Mapped IPv4 addresses
// are unmapped.
func parseAddr(raw string) (netip.Addr, bool) {
	clean := strings.Trim(strings.TrimSpace(raw), `"`)
	if clean == "" {
		return netip.Addr{}, false
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return addrPort.Addr().WithZone("").Unmap(), true
	}

	clean = strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	addr, err := netip.ParseAddr(clean)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}

// forwardedFor extracts the for= parameters of an RFC 7239 Forwarded header.
func forwardedFor(header string) []string {
	var nodes []string
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				nodes = append(nodes, strings.Trim(value, `"`))
			}
		}
	}
	return nodes
}

// generateETag creates a strong ETag from content using SHA-256
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
