// Package user_agent classifies raw user-agent strings into browser, OS and
// device facts using an embedded, ordered rule table.
package user_agent

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Unknown is reported for any fact the rule table cannot resolve.
const Unknown = "Unknown"

// DeviceClass is the coarse form factor of the client.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "Mobile"
	DeviceTablet  DeviceClass = "Tablet"
	DeviceDesktop DeviceClass = "Desktop"
)

// Classification is the result of classifying one user-agent string.
type Classification struct {
	BrowserName    string      `json:"browserName"`
	BrowserVersion string      `json:"browserVersion"`
	OSName         string      `json:"osName"`
	OSVersion      string      `json:"osVersion"`
	DeviceClass    DeviceClass `json:"deviceClass"`
	Bot            bool        `json:"bot"`
}

// Hints carries client-reported signals that refine UA-only classification.
type Hints struct {
	// MaxTouchPoints is navigator.maxTouchPoints; iPadOS in desktop mode
	// sends a Mac UA but reports more than one touch point.
	MaxTouchPoints int
}

//go:embed database/rules.yml
var databaseFiles embed.FS

// Rule is one ordered browser or OS match rule.
type Rule struct {
	Name     string            `yaml:"name"`
	Regex    string            `yaml:"regex"`
	Version  string            `yaml:"version"`
	Exclude  string            `yaml:"exclude"`
	Versions map[string]string `yaml:"versions"`
}

type botRule struct {
	Regex string `yaml:"regex"`
}

type deviceRules struct {
	Tablet string `yaml:"tablet"`
	Mobile string `yaml:"mobile"`
}

type ruleTable struct {
	Bots     []botRule   `yaml:"bots"`
	Browsers []Rule      `yaml:"browsers"`
	OS       []Rule      `yaml:"os"`
	Devices  deviceRules `yaml:"devices"`
}

// RegexCache holds compiled patterns keyed by source.
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

func (rc *RegexCache) match(pattern, s string) bool {
	if pattern == "" {
		return false
	}
	regex, err := rc.get(pattern)
	if err != nil {
		return false
	}
	return regex.MatchString(s)
}

var (
	parser *Classifier
	once   sync.Once
)

// Classifier applies a rule table to user-agent strings. It is safe for
// concurrent use.
type Classifier struct {
	rules      ruleTable
	regexCache *RegexCache
}

// NewClassifier parses a YAML rule table.
func NewClassifier(data []byte) (*Classifier, error) {
	var rules ruleTable
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rule table: %w", err)
	}
	return &Classifier{rules: rules, regexCache: newRegexCache()}, nil
}

// Default returns the classifier backed by the embedded rule table.
func Default() *Classifier {
	once.Do(func() {
		data, err := databaseFiles.ReadFile("database/rules.yml")
		if err != nil {
			panic(fmt.Sprintf("user_agent: read embedded rules: %v", err))
		}
		parser, err = NewClassifier(data)
		if err != nil {
			panic(fmt.Sprintf("user_agent: %v", err))
		}
	})
	return parser
}

// Classify classifies ua with the embedded rule table.
func Classify(ua string) Classification {
	return Default().Classify(ua)
}

// ClassifyWithHints classifies ua with the embedded rule table and client hints.
func ClassifyWithHints(ua string, hints Hints) Classification {
	return Default().ClassifyWithHints(ua, hints)
}

// Classify is a pure function of ua; unmatched facts are Unknown.
func (c *Classifier) Classify(ua string) Classification {
	return c.ClassifyWithHints(ua, Hints{})
}

func (c *Classifier) ClassifyWithHints(ua string, hints Hints) Classification {
	result := Classification{
		BrowserName:    Unknown,
		BrowserVersion: Unknown,
		OSName:         Unknown,
		OSVersion:      Unknown,
		DeviceClass:    DeviceDesktop,
	}

	ua = strings.TrimSpace(ua)
	if ua == "" {
		return result
	}

	result.Bot = c.parseBot(ua)
	result.BrowserName, result.BrowserVersion = c.firstMatch(c.rules.Browsers, ua)
	result.OSName, result.OSVersion = c.firstMatch(c.rules.OS, ua)
	result.DeviceClass = c.parseDevice(ua)

	if result.OSName == "macOS" && hints.MaxTouchPoints > 1 {
		result.OSName = "iOS"
		result.DeviceClass = DeviceTablet
	}

	return result
}

func (c *Classifier) parseBot(ua string) bool {
	for _, bot := range c.rules.Bots {
		if c.regexCache.match(bot.Regex, ua) {
			return true
		}
	}
	return false
}

func (c *Classifier) firstMatch(rules []Rule, ua string) (string, string) {
	for _, entry := range rules {
		regex, err := c.regexCache.get(entry.Regex)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(ua)
		if len(matches) == 0 {
			continue
		}
		if c.regexCache.match(entry.Exclude, ua) {
			continue
		}
		return entry.Name, resolveVersion(entry, matches)
	}
	return Unknown, Unknown
}

func (c *Classifier) parseDevice(ua string) DeviceClass {
	if c.regexCache.match(c.rules.Devices.Tablet, ua) {
		return DeviceTablet
	}
	if c.regexCache.match(c.rules.Devices.Mobile, ua) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// resolveVersion expands $N placeholders and maps through the rule's version table.
func resolveVersion(entry Rule, matches []string) string {
	if entry.Version == "" {
		return Unknown
	}
	version := entry.Version
	for i := len(matches) - 1; i >= 1; i-- {
		version = strings.ReplaceAll(version, fmt.Sprintf("$%d", i), matches[i])
	}
	version = strings.Trim(strings.ReplaceAll(version, "_", "."), ". ")
	if mapped, ok := entry.Versions[version]; ok {
		version = mapped
	}
	if version == "" || strings.Contains(version, "$") {
		return Unknown
	}
	return version
}
