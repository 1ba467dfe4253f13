// Package referrers extracts referrer hostnames and labels traffic sources.
package referrers

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// Direct is the source key for visits without a usable referrer.
const Direct = "direct"

//go:embed sources.yml
var sourcesYAML []byte

// Source is a named traffic source and the hosts that identify it.
type Source struct {
	Name  string   `yaml:"name"`
	Hosts []string `yaml:"hosts"`
}

var sources = mustLoadSources(sourcesYAML)

func mustLoadSources(data []byte) []Source {
	var list []Source
	if err := yaml.Unmarshal(data, &list); err != nil {
		panic(fmt.Sprintf("referrers: parse embedded sources: %v", err))
	}
	return list
}

// Hostname reduces a referrer URL to its lowercase hostname. Empty or
// unparsable referrers yield Direct.
func Hostname(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return Direct
	}
	if !strings.Contains(referrer, "://") {
		referrer = "https://" + referrer
	}
	parsed, err := url.Parse(referrer)
	if err != nil || parsed.Hostname() == "" {
		return Direct
	}
	return strings.ToLower(parsed.Hostname())
}

// IsInternal reports whether referrer points at the tracked domain itself.
func IsInternal(referrer, domain string) bool {
	host := strings.TrimPrefix(Hostname(referrer), "www.")
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	return host != Direct && domain != "" && within(host, domain)
}

func within(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// FriendlyName returns a display label for a referrer hostname: a known
// source name, "Direct", or the bare hostname with its first letter upper-cased.
func FriendlyName(hostname string) string {
	hostname = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hostname)), "www.")
	if hostname == "" || hostname == Direct {
		return "Direct"
	}
	for _, source := range sources {
		for _, host := range source.Hosts {
			if within(hostname, host) {
				return source.Name
			}
		}
	}
	return strings.ToUpper(hostname[:1]) + hostname[1:]
}
