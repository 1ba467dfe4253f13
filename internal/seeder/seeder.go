// Package seeder generates realistic visitor traffic for local development.
// Events go through the same ingest path as the tracker, so identity,
// presence and aggregation behave exactly as they would in production.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"footprint/internal/events"
	"footprint/internal/fingerprint"
	"footprint/internal/ingest"
)

// Ingester applies one raw event.
type Ingester interface {
	Ingest(ctx context.Context, raw *events.RawEvent, meta events.Meta) (ingest.Result, error)
}

// Options control how much traffic is generated.
type Options struct {
	Domains  []string
	Visitors int
	Days     int
	// Seed makes the generated traffic reproducible; zero picks a random seed.
	Seed uint64
	Now  func() time.Time
}

// Summary reports what a run produced.
type Summary struct {
	Visitors int `json:"visitors"`
	Events   int `json:"events"`
	Stored   int `json:"stored"`
}

// Seeder handles the data seeding process.
type Seeder struct {
	ingester Ingester
	logger   *slog.Logger
	opts     Options
	rng      *rand.Rand
}

// NewSeeder creates a new seeder instance
func NewSeeder(ingester Ingester, logger *slog.Logger, opts Options) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Domains) == 0 {
		opts.Domains = []string{"example.com"}
	}
	if opts.Visitors <= 0 {
		opts.Visitors = 50
	}
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Seeder{
		ingester: ingester,
		logger:   logger,
		opts:     opts,
		rng:      rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

type visitor struct {
	domain    string
	ip        string
	userAgent string
	signals   fingerprint.Signals
	id        string
}

// Run generates one or more sessions per visitor, spread over the configured
// number of days ending now.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	s.logger.Info("Seeding visitor traffic...",
		slog.Int("domains", len(s.opts.Domains)),
		slog.Int("visitors", s.opts.Visitors),
		slog.Int("days", s.opts.Days))

	var summary Summary
	ips := generateIPPool(s.rng, s.opts.Visitors)
	for i := 0; i < s.opts.Visitors; i++ {
		v := s.newVisitor(s.opts.Domains[i%len(s.opts.Domains)], ips[i])
		sessions := 1 + s.rng.IntN(3)
		for j := 0; j < sessions; j++ {
			if err := s.session(ctx, v, &summary); err != nil {
				return summary, err
			}
		}
		summary.Visitors++
	}

	s.logger.Info("Seeding completed successfully",
		slog.Int("events", summary.Events),
		slog.Int("stored", summary.Stored),
		slog.Duration("elapsed", time.Since(start)))
	return summary, nil
}

func (s *Seeder) newVisitor(domain, ip string) visitor {
	profile := profiles[s.rng.IntN(len(profiles))]
	signals := fingerprint.Signals{
		UserAgent:           profile.userAgent,
		Language:            languages[s.rng.IntN(len(languages))],
		Platform:            profile.platform,
		ScreenResolution:    profile.screens[s.rng.IntN(len(profile.screens))],
		HardwareConcurrency: profile.cores,
		DeviceMemory:        profile.memory,
		Timezone:            timezones[s.rng.IntN(len(timezones))],
		IP:                  fingerprint.TruncateIP(ip),
	}
	return visitor{
		domain:    domain,
		ip:        ip,
		userAgent: profile.userAgent,
		signals:   signals,
		id:        fingerprint.Compute(signals),
	}
}

// session replays one journey: views with heartbeats in between, an
// occasional click or form submit and a final page exit.
func (s *Seeder) session(ctx context.Context, v visitor, summary *Summary) error {
	window := time.Duration(s.opts.Days) * 24 * time.Hour
	at := s.opts.Now().Add(-time.Duration(s.rng.Int64N(int64(window))))
	journey := journeyTemplates[s.rng.IntN(len(journeyTemplates))]
	referrer := referrers[s.rng.IntN(len(referrers))]
	base := "https://" + v.domain

	for idx, path := range journey {
		pageURL := base + addUTMParams(s.rng, path)
		ref := base + "/"
		if idx == 0 {
			ref = referrer
		}
		if err := s.emit(ctx, v, at, events.TypeView, pageURL, ref, events.ViewData{
			PageTitle:        titleFor(path),
			PageURL:          pageURL,
			ViewportSize:     v.signals.ScreenResolution,
			ScreenResolution: v.signals.ScreenResolution,
		}, summary); err != nil {
			return err
		}

		dwell := time.Duration(5+s.rng.IntN(240)) * time.Second
		for beat := 90 * time.Second; beat < dwell; beat += 90 * time.Second {
			if err := s.emit(ctx, v, at.Add(beat), events.TypeHeartbeat, pageURL, "", events.HeartbeatData{}, summary); err != nil {
				return err
			}
		}

		switch roll := s.rng.IntN(10); {
		case roll < 3:
			click := events.ClickData{
				ElementType:    "a",
				ClickedContent: "Learn more",
				PageX:          float64(s.rng.IntN(1200)),
				PageY:          float64(s.rng.IntN(3000)),
				LinkTarget:     base + "/features",
			}
			if err := s.emit(ctx, v, at.Add(dwell/2), events.TypeClick, pageURL, "", click, summary); err != nil {
				return err
			}
		case roll == 3 && path == "/signup":
			submit := events.SubmitData{
				FormID:         "signup",
				FormAction:     "/signup",
				FormMethod:     "post",
				FormFieldCount: 3,
			}
			if err := s.emit(ctx, v, at.Add(dwell/2), events.TypeSubmit, pageURL, "", submit, summary); err != nil {
				return err
			}
		}
		at = at.Add(dwell)
	}

	return s.emit(ctx, v, at, events.TypePageExit, "", "", events.ExitData{}, summary)
}

func (s *Seeder) emit(ctx context.Context, v visitor, at time.Time, eventType events.EventType, pageURL, referrer string, data any, summary *Summary) error {
	typeData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", eventType, err)
	}
	timestamp, _ := json.Marshal(at.UnixMilli())

	raw := &events.RawEvent{
		Type:        string(eventType),
		Timestamp:   timestamp,
		Domain:      v.domain,
		Fingerprint: v.id,
		URL:         pageURL,
		Timezone:    v.signals.Timezone,
		Language:    v.signals.Language,
		Referrer:    referrer,
		TypeData:    typeData,
	}
	result, err := s.ingester.Ingest(ctx, raw, events.Meta{IP: v.ip, UserAgent: v.userAgent, ReceivedAt: at})
	if err != nil {
		return fmt.Errorf("ingest %s event: %w", eventType, err)
	}
	summary.Events++
	if result.Stored {
		summary.Stored++
	}
	return nil
}

// --- Helper functions ---

type deviceProfile struct {
	userAgent string
	platform  string
	screens   []string
	cores     int
	memory    float64
}

var profiles = []deviceProfile{
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		platform:  "Win32", screens: []string{"1920x1080", "2560x1440"}, cores: 8, memory: 8,
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		platform:  "MacIntel", screens: []string{"1440x900", "1512x982"}, cores: 10, memory: 8,
	},
	{
		userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		platform:  "iPhone", screens: []string{"390x844", "430x932"}, cores: 6, memory: 4,
	},
	{
		userAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		platform:  "Linux armv8l", screens: []string{"412x915"}, cores: 8, memory: 8,
	},
	{
		userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		platform:  "Linux x86_64", screens: []string{"1920x1080"}, cores: 16, memory: 8,
	},
	{
		userAgent: "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		platform:  "iPad", screens: []string{"820x1180"}, cores: 6, memory: 4,
	},
	{
		userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		platform:  "", screens: []string{"1024x768"}, cores: 1, memory: 1,
	},
}

var languages = []string{"en-US", "en-GB", "de-DE", "fr-FR", "es-ES", "pt-BR"}

var timezones = []string{"America/New_York", "Europe/Berlin", "Europe/London", "Asia/Tokyo", "America/Sao_Paulo"}

var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/", "/signup"},
	{"/blog/article-1", "/about", "/pricing"},
	{"/"},
}

var referrers = []string{
	"", // Direct visit
	"https://www.google.com/",
	"https://duckduckgo.com/",
	"https://news.ycombinator.com/",
	"https://github.com/",
	"https://t.co/abc123",
	"https://some-other-website.com/blog/post",
}

func titleFor(path string) string {
	if path == "/" {
		return "Home"
	}
	return path[1:]
}

// generateIPPool creates a pool of unique public IPv4 addresses
func generateIPPool(rng *rand.Rand, count int) []string {
	seen := make(map[string]bool, count)
	ips := make([]string, 0, count)
	for len(ips) < count {
		// 11-99 avoids the 10/8 private block and the loopback range.
		ip := fmt.Sprintf("%d.%d.%d.%d", 11+rng.IntN(89), rng.IntN(256), rng.IntN(256), 1+rng.IntN(254))
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

// addUTMParams adds campaign parameters to about one path in five
func addUTMParams(rng *rand.Rand, path string) string {
	if rng.IntN(10) < 8 {
		return path
	}
	sources := []string{"google", "newsletter", "twitter", "linkedin"}
	mediums := []string{"cpc", "social", "email", "referral"}

	params := url.Values{}
	params.Set("utm_source", sources[rng.IntN(len(sources))])
	params.Set("utm_medium", mediums[rng.IntN(len(mediums))])
	return path + "?" + params.Encode()
}
