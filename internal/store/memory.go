package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"footprint/internal/events"
	"footprint/internal/models"
)

type detailKey struct {
	fingerprint string
	ip          string
}

// MemoryRepository keeps everything in process. It is used by tests and by
// fpctl's offline commands.
type MemoryRepository struct {
	mu      sync.RWMutex
	domains map[string]models.Domain
	users   map[string]models.User
	details map[detailKey]models.Detail
	events  []models.Event
	nextID  uint
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		domains: make(map[string]models.Domain),
		users:   make(map[string]models.User),
		details: make(map[detailKey]models.Detail),
	}
}

func (r *MemoryRepository) EnsureDomain(_ context.Context, domain string, at time.Time) error {
	if domain == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.domains[domain]; !ok {
		r.nextID++
		r.domains[domain] = models.Domain{ID: r.nextID, Domain: domain, CreatedAt: at.UTC()}
	}
	return nil
}

func (r *MemoryRepository) UpsertUser(_ context.Context, visit UserVisit) error {
	seen := visit.Seen.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[visit.Fingerprint]
	if !ok {
		r.nextID++
		r.users[visit.Fingerprint] = models.User{
			ID:          r.nextID,
			Fingerprint: visit.Fingerprint,
			Domain:      visit.Domain,
			IP:          visit.IP,
			CreatedAt:   seen,
			LastSeen:    seen,
		}
		return nil
	}

	if user.Domain == "" {
		user.Domain = visit.Domain
	}
	if visit.Touch {
		if !seen.Before(user.LastSeen) && visit.IP != "" {
			user.IP = visit.IP
		}
		if seen.After(user.LastSeen) {
			user.LastSeen = seen
		}
	}
	r.users[visit.Fingerprint] = user
	return nil
}

func (r *MemoryRepository) MergeDetail(_ context.Context, patch DetailPatch) error {
	location, err := locationJSON(patch.Location)
	if err != nil {
		return err
	}
	seen := patch.Seen.UTC()
	key := detailKey{patch.Fingerprint, patch.IP}

	r.mu.Lock()
	defer r.mu.Unlock()

	detail, ok := r.details[key]
	if !ok {
		r.nextID++
		detail = models.Detail{
			ID:          r.nextID,
			Fingerprint: patch.Fingerprint,
			IP:          patch.IP,
			CreatedAt:   seen,
			LastSeen:    seen,
		}
	}
	mergeField(&detail.OS, patch.OS)
	mergeField(&detail.BrowserName, patch.BrowserName)
	mergeField(&detail.BrowserVersion, patch.BrowserVersion)
	mergeField(&detail.Timezone, patch.Timezone)
	mergeField(&detail.Language, patch.Language)
	mergeField(&detail.Referrer, patch.Referrer)
	if location != nil {
		detail.Location = location
	}
	if seen.After(detail.LastSeen) {
		detail.LastSeen = seen
	}
	r.details[key] = detail
	return nil
}

func mergeField(dst *string, incoming string) {
	if incoming != "" {
		*dst = incoming
	}
}

func (r *MemoryRepository) AppendEvent(_ context.Context, event *events.CanonicalEvent) error {
	if !event.Type.Durable() {
		return nil
	}
	record, err := RecordFromEvent(event)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, *record)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) UpdateNotes(_ context.Context, edit NotesEdit) (*models.Detail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if edit.DetailID == 0 {
		detail, ok := r.details[detailKey{edit.Fingerprint, edit.IP}]
		if !ok {
			return nil, ErrNotFound
		}
		detail.Notes = edit.Notes
		r.details[detailKey{edit.Fingerprint, edit.IP}] = detail
		return &detail, nil
	}

	for key, detail := range r.details {
		if detail.ID == edit.DetailID {
			detail.Notes = edit.Notes
			r.details[key] = detail
			return &detail, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) FindUser(_ context.Context, fingerprint string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context, domain string) ([]models.User, error) {
	return r.filterUsers(func(u models.User) bool {
		return domain == "" || u.Domain == domain
	}), nil
}

func (r *MemoryRepository) ActiveUsers(_ context.Context, since time.Time) ([]models.User, error) {
	return r.filterUsers(func(u models.User) bool {
		return u.Domain != "" && !u.LastSeen.Before(since)
	}), nil
}

func (r *MemoryRepository) filterUsers(keep func(models.User) bool) []models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		if keep(u) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].LastSeen.After(users[j].LastSeen)
	})
	return users
}

func (r *MemoryRepository) ListDetails(_ context.Context, fingerprint string) ([]models.Detail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var details []models.Detail
	for key, d := range r.details {
		if key.fingerprint == fingerprint {
			details = append(details, d)
		}
	}
	sort.Slice(details, func(i, j int) bool {
		return details[i].LastSeen.After(details[j].LastSeen)
	})
	return details, nil
}

func (r *MemoryRepository) ListDomains(_ context.Context) ([]models.Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domains := make([]models.Domain, 0, len(r.domains))
	for _, d := range r.domains {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		return domains[i].Domain < domains[j].Domain
	})
	return domains, nil
}

func (r *MemoryRepository) ListEvents(_ context.Context, filter EventFilter) ([]models.Event, error) {
	r.mu.RLock()
	var records []models.Event
	for _, e := range r.events {
		if filter.Domain != "" && e.Domain != filter.Domain {
			continue
		}
		if filter.Fingerprint != "" && e.Fingerprint != filter.Fingerprint {
			continue
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.Timestamp.Before(filter.To) {
			continue
		}
		records = append(records, e)
	}
	r.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if filter.Newest {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if filter.Newest {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (r *MemoryRepository) DeleteEventsBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	var deleted int64
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) && (limit <= 0 || deleted < int64(limit)) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}
