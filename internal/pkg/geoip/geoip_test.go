package geoip

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint/internal/pkg/logging"
)

func TestOpenWithoutDatabase(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"), logging.Discard())
	require.NoError(t, err)
	defer r.Close()

	place, err := r.Lookup(context.Background(), "8.8.8.8")
	assert.Nil(t, place)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLookupRejectsInvalidIP(t *testing.T) {
	r, err := Open("", logging.Discard())
	require.NoError(t, err)

	_, err = r.Lookup(context.Background(), "not-an-ip")
	assert.Error(t, err)
}

func TestCountryName(t *testing.T) {
	r, err := Open("", logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, "Germany", r.CountryName("DE"))
	assert.Equal(t, "ZZ", r.CountryName("zz"))
}

func TestPlaceName(t *testing.T) {
	assert.Equal(t, "Berlin, Land Berlin, Germany",
		Place{City: "Berlin", Region: "Land Berlin", CountryName: "Germany"}.PlaceName())
	assert.Equal(t, "Germany", Place{CountryName: "Germany"}.PlaceName())
	assert.Equal(t, "", Place{}.PlaceName())
}

// slowReader blocks City until release is closed and records reads that
// happen after Close.
type slowReader struct {
	release   chan struct{}
	closed    atomic.Bool
	lateReads atomic.Int32
	country   string
}

func (s *slowReader) City(net.IP) (*geoip2.City, error) {
	<-s.release
	if s.closed.Load() {
		s.lateReads.Add(1)
	}
	record := &geoip2.City{}
	record.Country.IsoCode = s.country
	return record, nil
}

func (s *slowReader) Close() error {
	s.closed.Store(true)
	return nil
}

func TestReloadWaitsForAbandonedLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o600))

	first := &slowReader{release: make(chan struct{}), country: "DE"}
	second := &slowReader{release: make(chan struct{}), country: "FR"}
	close(second.release)
	readers := []cityReader{first, second}

	r := &Resolver{path: path, countries: gountries.New(), logger: logging.Discard()}
	r.open = func(string) (cityReader, error) {
		next := readers[0]
		readers = readers[1:]
		return next, nil
	}
	require.NoError(t, r.Reload())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Lookup(ctx, "8.8.8.8")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	reloaded := make(chan error, 1)
	go func() { reloaded <- r.Reload() }()

	select {
	case <-reloaded:
		t.Fatal("reload closed the database under a running lookup")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, first.closed.Load())

	close(first.release)
	require.NoError(t, <-reloaded)
	assert.True(t, first.closed.Load())
	assert.Zero(t, first.lateReads.Load())

	place, err := r.Lookup(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "FR", place.CountryCode)
	require.NoError(t, r.Close())
	assert.True(t, second.closed.Load())
}
