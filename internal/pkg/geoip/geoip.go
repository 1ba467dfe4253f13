package geoip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
)

// ErrUnavailable is returned when no GeoLite2 database is loaded.
var ErrUnavailable = errors.New("geoip: database unavailable")

// Place is the location resolved for an IP address.
type Place struct {
	City        string
	Region      string
	CountryCode string
	CountryName string
	Latitude    float64
	Longitude   float64
}

// PlaceName joins the non-empty parts from most to least specific.
func (p Place) PlaceName() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{p.City, p.Region, p.CountryName} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

// Locator resolves IP addresses to places.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*Place, error)
}

// cityReader is the part of *geoip2.Reader the resolver uses.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// handle counts the lookups still reading from one database so it is only
// unmapped once they finish.
type handle struct {
	reader   cityReader
	inflight sync.WaitGroup
}

// drain waits for running lookups and closes the reader.
func (h *handle) drain() error {
	h.inflight.Wait()
	return h.reader.Close()
}

// Resolver is a Locator backed by a GeoLite2 City database.
type Resolver struct {
	mu        sync.RWMutex
	current   *handle
	path      string
	open      func(path string) (cityReader, error)
	countries *gountries.Query
	logger    *slog.Logger
}

func openGeoLite(path string) (cityReader, error) {
	return geoip2.Open(path)
}

// Open loads the database at path. A missing file is not an error: the
// resolver is returned without a reader and every lookup reports
// ErrUnavailable, since geolocation is optional.
func Open(path string, logger *slog.Logger) (*Resolver, error) {
	r := &Resolver{path: path, open: openGeoLite, countries: gountries.New(), logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reopens the database from disk and swaps it in. The previous
// database is closed once the lookups still reading it are done, so Reload
// blocks for at most one slow read.
func (r *Resolver) Reload() error {
	if r.path == "" {
		r.logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return nil
	}

	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		r.logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		return fmt.Errorf("stat geolite2 database: %w", err)
	}

	reader, err := r.open(r.path)
	if err != nil {
		return fmt.Errorf("open geolite2 database: %w", err)
	}

	old := r.swap(&handle{reader: reader})
	if old != nil {
		if err := old.drain(); err != nil {
			r.logger.Warn("Closing previous GeoLite2 database failed", slog.Any("error", err))
		}
	}

	r.logger.Info("GeoLite2 database loaded", slog.String("path", r.path))
	return nil
}

func (r *Resolver) swap(next *handle) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current
	r.current = next
	return old
}

// acquire pins the current database for one lookup. The caller must call
// inflight.Done on the returned handle.
func (r *Resolver) acquire() *handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil
	}
	r.current.inflight.Add(1)
	return r.current
}

// Lookup resolves ip, giving up when ctx is done. The database read itself is
// not interruptible, so a slow read finishes in the background and is
// discarded; it keeps its database pinned until then.
func (r *Resolver) Lookup(ctx context.Context, ip string) (*Place, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, fmt.Errorf("geoip: invalid ip %q", ip)
	}

	h := r.acquire()
	if h == nil {
		return nil, ErrUnavailable
	}

	type outcome struct {
		place *Place
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer h.inflight.Done()
		record, err := h.reader.City(parsed)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{place: r.placeFromRecord(record)}
	}()

	select {
	case res := <-done:
		return res.place, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) placeFromRecord(record *geoip2.City) *Place {
	place := &Place{
		City:        record.City.Names["en"],
		CountryCode: record.Country.IsoCode,
		CountryName: record.Country.Names["en"],
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
	}
	if len(record.Subdivisions) > 0 {
		place.Region = record.Subdivisions[0].Names["en"]
	}
	if place.CountryName == "" && place.CountryCode != "" {
		place.CountryName = r.CountryName(place.CountryCode)
	}
	return place
}

// CountryName returns the common English name for an ISO alpha-2 code, or
// the code itself when it is not recognised.
func (r *Resolver) CountryName(code string) string {
	country, err := r.countries.FindCountryByAlpha(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	return country.Name.Common
}

// Close releases the database after pending lookups finish.
func (r *Resolver) Close() error {
	old := r.swap(nil)
	if old == nil {
		return nil
	}
	return old.drain()
}
