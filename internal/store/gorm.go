package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"footprint/internal/events"
	"footprint/internal/models"
)

const (
	insertDomainSQL = `INSERT INTO domains (domain, created_at) VALUES (?, ?)
		ON CONFLICT (domain) DO NOTHING`

	touchUserSQL = `INSERT INTO users (fingerprint, domain, ip, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			ip = CASE WHEN excluded.last_seen >= users.last_seen AND excluded.ip <> '' THEN excluded.ip ELSE users.ip END,
			domain = CASE WHEN users.domain = '' THEN excluded.domain ELSE users.domain END,
			last_seen = MAX(users.last_seen, excluded.last_seen)`

	createUserSQL = `INSERT INTO users (fingerprint, domain, ip, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			domain = CASE WHEN users.domain = '' THEN excluded.domain ELSE users.domain END`

	mergeDetailSQL = `INSERT INTO details
		(fingerprint, ip, os, browser_name, browser_version, timezone, language, referrer, location, created_at, last_seen, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')
		ON CONFLICT (fingerprint, ip) DO UPDATE SET
			os = CASE WHEN excluded.os <> '' THEN excluded.os ELSE details.os END,
			browser_name = CASE WHEN excluded.browser_name <> '' THEN excluded.browser_name ELSE details.browser_name END,
			browser_version = CASE WHEN excluded.browser_version <> '' THEN excluded.browser_version ELSE details.browser_version END,
			timezone = CASE WHEN excluded.timezone <> '' THEN excluded.timezone ELSE details.timezone END,
			language = CASE WHEN excluded.language <> '' THEN excluded.language ELSE details.language END,
			referrer = CASE WHEN excluded.referrer <> '' THEN excluded.referrer ELSE details.referrer END,
			location = COALESCE(excluded.location, details.location),
			last_seen = MAX(details.last_seen, excluded.last_seen)`

	deleteEventsSQL = `DELETE FROM events WHERE id IN (
		SELECT id FROM events WHERE timestamp < ? ORDER BY timestamp LIMIT ?)`
)

// GormRepository stores records in SQLite through gorm. Every write goes
// through sqlite.PerformWrite so busy errors are retried.
type GormRepository struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

var _ Repository = (*GormRepository)(nil)

// NewGormRepository returns a repository on dbManager's connection.
func NewGormRepository(dbManager cartridge.DBManager, logger *slog.Logger) *GormRepository {
	return &GormRepository{dbManager: dbManager, logger: logger}
}

func (r *GormRepository) db(ctx context.Context) *gorm.DB {
	return r.dbManager.GetConnection().WithContext(ctx)
}

func (r *GormRepository) write(ctx context.Context, f func(tx *gorm.DB) error) error {
	return models.PerformWrite(r.logger, r.db(ctx), f)
}

func (r *GormRepository) EnsureDomain(ctx context.Context, domain string, at time.Time) error {
	if domain == "" {
		return nil
	}
	err := r.write(ctx, func(tx *gorm.DB) error {
		return tx.Exec(insertDomainSQL, domain, at.UTC()).Error
	})
	if err != nil {
		return fmt.Errorf("ensure domain %q: %w", domain, err)
	}
	return nil
}

func (r *GormRepository) UpsertUser(ctx context.Context, visit UserVisit) error {
	query := createUserSQL
	if visit.Touch {
		query = touchUserSQL
	}
	seen := visit.Seen.UTC()
	err := r.write(ctx, func(tx *gorm.DB) error {
		return tx.Exec(query, visit.Fingerprint, visit.Domain, visit.IP, seen, seen).Error
	})
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", visit.Fingerprint, err)
	}
	return nil
}

func (r *GormRepository) MergeDetail(ctx context.Context, patch DetailPatch) error {
	location, err := locationJSON(patch.Location)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	seen := patch.Seen.UTC()
	err = r.write(ctx, func(tx *gorm.DB) error {
		return tx.Exec(mergeDetailSQL,
			patch.Fingerprint, patch.IP,
			patch.OS, patch.BrowserName, patch.BrowserVersion,
			patch.Timezone, patch.Language, patch.Referrer,
			location, seen, seen,
		).Error
	})
	if err != nil {
		return fmt.Errorf("merge detail %q/%q: %w", patch.Fingerprint, patch.IP, err)
	}
	return nil
}

func (r *GormRepository) AppendEvent(ctx context.Context, event *events.CanonicalEvent) error {
	if !event.Type.Durable() {
		return nil
	}
	record, err := RecordFromEvent(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	err = r.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
	if err != nil {
		return fmt.Errorf("append event %s: %w", event.ID, err)
	}
	return nil
}

func (r *GormRepository) UpdateNotes(ctx context.Context, edit NotesEdit) (*models.Detail, error) {
	var detail models.Detail
	found := false
	err := r.write(ctx, func(tx *gorm.DB) error {
		query := tx.Model(&models.Detail{})
		if edit.DetailID != 0 {
			query = query.Where("id = ?", edit.DetailID)
		} else {
			query = query.Where("fingerprint = ? AND ip = ?", edit.Fingerprint, edit.IP)
		}
		result := query.Update("notes", edit.Notes)
		if result.Error != nil || result.RowsAffected == 0 {
			return result.Error
		}
		found = true
		if edit.DetailID != 0 {
			return tx.First(&detail, edit.DetailID).Error
		}
		return tx.Where("fingerprint = ? AND ip = ?", edit.Fingerprint, edit.IP).First(&detail).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update notes: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &detail, nil
}

func (r *GormRepository) FindUser(ctx context.Context, fingerprint string) (*models.User, error) {
	var user models.User
	err := r.db(ctx).Where("fingerprint = ?", fingerprint).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", fingerprint, err)
	}
	return &user, nil
}

func (r *GormRepository) ListUsers(ctx context.Context, domain string) ([]models.User, error) {
	var users []models.User
	query := r.db(ctx).Order("last_seen DESC")
	if domain != "" {
		query = query.Where("domain = ?", domain)
	}
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *GormRepository) ActiveUsers(ctx context.Context, since time.Time) ([]models.User, error) {
	var users []models.User
	err := r.db(ctx).
		Where("last_seen >= ? AND domain <> ''", since.UTC()).
		Order("last_seen DESC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

func (r *GormRepository) ListDetails(ctx context.Context, fingerprint string) ([]models.Detail, error) {
	var details []models.Detail
	err := r.db(ctx).Where("fingerprint = ?", fingerprint).Order("last_seen DESC").Find(&details).Error
	if err != nil {
		return nil, fmt.Errorf("list details: %w", err)
	}
	return details, nil
}

func (r *GormRepository) ListDomains(ctx context.Context) ([]models.Domain, error) {
	var domains []models.Domain
	if err := r.db(ctx).Order("domain").Find(&domains).Error; err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return domains, nil
}

func (r *GormRepository) ListEvents(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	query := r.db(ctx).Model(&models.Event{})
	if filter.Domain != "" {
		query = query.Where("domain = ?", filter.Domain)
	}
	if filter.Fingerprint != "" {
		query = query.Where("fingerprint = ?", filter.Fingerprint)
	}
	if !filter.From.IsZero() {
		query = query.Where("timestamp >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query = query.Where("timestamp < ?", filter.To.UTC())
	}
	if filter.Newest {
		query = query.Order("timestamp DESC").Order("id DESC")
	} else {
		query = query.Order("timestamp ASC").Order("id ASC")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []models.Event
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return records, nil
}

func (r *GormRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = -1
	}
	var deleted int64
	err := r.write(ctx, func(tx *gorm.DB) error {
		result := tx.Exec(deleteEventsSQL, cutoff.UTC(), limit)
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return deleted, nil
}
