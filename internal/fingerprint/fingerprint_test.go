package fingerprint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint/internal/pkg/logging"
)

func baseSignals() Signals {
	return Signals{
		UserAgent:           "UA",
		Language:            "en-US",
		Platform:            "Win32",
		ScreenResolution:    "1920x1080",
		HardwareConcurrency: 8,
		DeviceMemory:        8,
		Timezone:            "Asia/Shanghai",
		IP:                  "203.0.113",
	}
}

func TestHash(t *testing.T) {
	tests := map[string]string{
		"":            "00001505",
		"a":           "0002b606",
		"hello world": "3551c8c1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)": "5758ca54",
		"中文😀": "56f8144a",
	}
	for in, want := range tests {
		assert.Equal(t, want, Hash(in), in)
	}
}

func TestCanonicalIsKeySorted(t *testing.T) {
	assert.Equal(t,
		`{"deviceMemory":8,"hardwareConcurrency":8,"ip":"203.0.113","language":"en-US","platform":"Win32","screenResolution":"1920x1080","timezone":"Asia/Shanghai","userAgent":"UA"}`,
		baseSignals().canonical())
}

func TestCanonicalKeepsMarkupCharacters(t *testing.T) {
	s := Signals{UserAgent: "a<b>&c"}
	assert.Contains(t, s.canonical(), `"userAgent":"a<b>&c"`)
}

func TestCompute(t *testing.T) {
	s := baseSignals()
	id := Compute(s)
	assert.True(t, ValidID(id))
	assert.Equal(t, id, Compute(s))

	s.Timezone = "Europe/Berlin"
	assert.NotEqual(t, id, Compute(s))
}

func TestDrift(t *testing.T) {
	a := baseSignals()
	b := a
	assert.Zero(t, Drift(a, b))

	b.IP = "198.51.100"
	assert.Zero(t, Drift(a, b), "ip is not tracked")

	b.Language = "de-DE"
	b.Timezone = "Europe/Berlin"
	assert.InDelta(t, 2.0/7.0, Drift(a, b), 1e-9)

	b.ScreenResolution = "1280x720"
	assert.InDelta(t, 3.0/7.0, Drift(a, b), 1e-9)
}

func TestTruncateIP(t *testing.T) {
	assert.Equal(t, "203.0.113", TruncateIP("203.0.113.42"))
	assert.Equal(t, "203.0.113", TruncateIP("::ffff:203.0.113.42"))
	assert.Equal(t, "2001:db8:85a3:0", TruncateIP("2001:db8:85a3::8a2e:370:7334"))
	assert.Equal(t, "", TruncateIP("nope"))
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("0a1b2c3d"))
	assert.False(t, ValidID("0A1B2C3D"))
	assert.False(t, ValidID("abc"))
	assert.False(t, ValidID("zzzzzzzz"))
}

type failingStore struct{ saves int }

func (s *failingStore) Load() (*Record, error) { return nil, errors.New("quota exceeded") }
func (s *failingStore) Save(Record) error {
	s.saves++
	return errors.New("quota exceeded")
}

func newTestGenerator(now time.Time) *Generator {
	g := NewGenerator(DefaultTTL, DefaultDriftRatio, logging.Discard())
	g.Now = func() time.Time { return now }
	return g
}

func TestGenerateStability(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := newTestGenerator(now)
	store := &MemoryStore{}

	first := g.Generate(baseSignals(), store)
	assert.Equal(t, first, g.Generate(baseSignals(), store))

	record, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, first, record.ID)
	assert.Equal(t, now.Add(DefaultTTL), record.ExpiresAt)
}

func TestGenerateToleratesMinorDrift(t *testing.T) {
	g := newTestGenerator(time.Now())
	store := &MemoryStore{}
	first := g.Generate(baseSignals(), store)

	changed := baseSignals()
	changed.UserAgent = "UA patched"
	changed.DeviceMemory = 4
	assert.Equal(t, first, g.Generate(changed, store), "2 of 7 fields is within the threshold")
}

func TestGenerateRotatesOnMajorDrift(t *testing.T) {
	g := newTestGenerator(time.Now())
	store := &MemoryStore{}
	first := g.Generate(baseSignals(), store)

	changed := baseSignals()
	changed.UserAgent = "UA 2"
	changed.Language = "fr-FR"
	changed.Platform = "MacIntel"
	second := g.Generate(changed, store)

	assert.NotEqual(t, first, second)
	assert.Equal(t, Compute(changed), second)

	record, _ := store.Load()
	assert.Equal(t, changed, record.Signals)
}

func TestGenerateRotatesAfterExpiry(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &MemoryStore{}
	require.NoError(t, store.Save(Record{
		ID:        "deadbeef",
		Signals:   baseSignals(),
		CreatedAt: start,
		ExpiresAt: start.Add(DefaultTTL),
	}))

	assert.Equal(t, "deadbeef", newTestGenerator(start.Add(29*24*time.Hour)).Generate(baseSignals(), store))
	assert.Equal(t, Compute(baseSignals()), newTestGenerator(start.Add(DefaultTTL)).Generate(baseSignals(), store))
}

func TestGenerateTreatsStorageFailureAsAbsent(t *testing.T) {
	store := &failingStore{}
	id := newTestGenerator(time.Now()).Generate(baseSignals(), store)
	assert.Equal(t, Compute(baseSignals()), id)
	assert.Equal(t, 1, store.saves)

	assert.Equal(t, id, newTestGenerator(time.Now()).Generate(baseSignals(), nil))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fp.json")
	store := FileStore{Path: path}

	record, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, record)

	g := newTestGenerator(time.Now())
	id := g.Generate(baseSignals(), store)
	assert.Equal(t, id, g.Generate(baseSignals(), store))

	t.Run("corrupt file regenerates", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, err := store.Load()
		assert.Error(t, err)

		assert.Equal(t, Compute(baseSignals()), g.Generate(baseSignals(), store))
		record, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, id, record.ID)
	})

	t.Run("record with bad id regenerates", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"id":"XYZ","expiresAt":"2999-01-01T00:00:00Z"}`), 0o644))
		assert.Equal(t, Compute(baseSignals()), g.Generate(baseSignals(), store))
	})
}

func TestClientStoreReportsIssuedRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(DefaultTTL, DefaultDriftRatio, logging.Discard())
	first := &ClientStore{}
	id := g.GenerateAt(baseSignals(), first, now)
	require.True(t, first.Issued())
	require.NotNil(t, first.Record)
	assert.Equal(t, id, first.Record.ID)

	kept := &ClientStore{Record: first.Record}
	minor := baseSignals()
	minor.Language = "de-DE"
	assert.Equal(t, id, g.GenerateAt(minor, kept, now.Add(time.Hour)))
	assert.False(t, kept.Issued())

	rotated := &ClientStore{Record: first.Record}
	major := minor
	major.Timezone = "Europe/Berlin"
	major.ScreenResolution = "1280x720"
	major.Platform = "MacIntel"
	assert.NotEqual(t, id, g.GenerateAt(major, rotated, now.Add(time.Hour)))
	assert.True(t, rotated.Issued())
}
