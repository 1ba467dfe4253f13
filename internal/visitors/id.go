// Package visitors derives the identities used to count and label visitors.
package visitors

import "strings"

// Identifier is the coarse de-duplication key for unique-visitor counts: the
// IP address when known, otherwise the user-agent string. Prefixes keep the
// two namespaces from colliding. Events with neither yield "".
func Identifier(ip, userAgent string) string {
	if ip = strings.TrimSpace(ip); ip != "" {
		return "ip:" + ip
	}
	if userAgent = strings.TrimSpace(userAgent); userAgent != "" {
		return "ua:" + userAgent
	}
	return ""
}
