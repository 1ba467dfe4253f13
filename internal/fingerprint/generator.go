package fingerprint

import (
	"log/slog"
	"time"
)

// Record is a persisted fingerprint with the signal snapshot it was built from.
type Record struct {
	ID        string    `json:"id"`
	Signals   Signals   `json:"signals"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists at most one Record for a client.
type Store interface {
	// Load returns the stored record, or nil when none exists.
	Load() (*Record, error)
	Save(record Record) error
}

// Generator returns a stored fingerprint while it is fresh and its signals
// have not drifted, and rotates it otherwise.
type Generator struct {
	TTL        time.Duration
	DriftRatio float64
	Now        func() time.Time
	Logger     *slog.Logger
}

func NewGenerator(ttl time.Duration, driftRatio float64, logger *slog.Logger) *Generator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Generator{TTL: ttl, DriftRatio: driftRatio, Now: time.Now, Logger: logger}
}

// Generate never fails: storage errors and corrupt records are treated as
// "no stored fingerprint" and a fresh id is issued.
func (g *Generator) Generate(signals Signals, store Store) string {
	return g.GenerateAt(signals, store, g.Now())
}

// GenerateAt is Generate with expiry judged at now.
func (g *Generator) GenerateAt(signals Signals, store Store, now time.Time) string {

	if store != nil {
		record, err := store.Load()
		switch {
		case err != nil:
			g.Logger.Debug("Fingerprint store unreadable, regenerating", slog.Any("error", err))
		case record == nil:
		case !ValidID(record.ID) || record.ExpiresAt.IsZero():
			g.Logger.Debug("Stored fingerprint corrupt, regenerating")
		case !now.Before(record.ExpiresAt):
			g.Logger.Debug("Stored fingerprint expired", slog.String("id", record.ID))
		case Drift(record.Signals, signals) > g.DriftRatio:
			g.Logger.Debug("Fingerprint signals drifted",
				slog.String("id", record.ID),
				slog.Float64("drift", Drift(record.Signals, signals)))
		default:
			return record.ID
		}
	}

	id := Compute(signals)
	if store != nil {
		err := store.Save(Record{
			ID:        id,
			Signals:   signals,
			CreatedAt: now,
			ExpiresAt: now.Add(g.TTL),
		})
		if err != nil {
			g.Logger.Debug("Failed to persist fingerprint", slog.Any("error", err))
		}
	}
	return id
}
