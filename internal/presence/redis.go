package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared presence store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// removeIfNotNewer deletes the member only when its score is <= ARGV[2].
var removeIfNotNewer = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if score and tonumber(score) <= tonumber(ARGV[2]) then
	return redis.call('ZREM', KEYS[1], ARGV[1])
end
return 0
`)

// RedisTracker keeps one sorted set per domain, scored by lastSeen in unix
// milliseconds, so several server processes share presence.
type RedisTracker struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ Tracker = (*RedisTracker)(nil)

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(cfg RedisConfig, timeout time.Duration) (*RedisTracker, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("presence: redis address is required")
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "footprint"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis presence: %w", err)
	}

	return &RedisTracker{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix), timeout: timeout}, nil
}

func (r *RedisTracker) domainKey(domain string) string {
	return r.prefix + ":presence:" + domain
}

func (r *RedisTracker) domainsKey() string {
	return r.prefix + ":presence:domains"
}

// cutoff is the score at or below which a visitor is offline.
func (r *RedisTracker) cutoff(now time.Time) int64 {
	return now.Add(-r.timeout).UnixMilli()
}

func (r *RedisTracker) RecordActivity(ctx context.Context, domain, fingerprint string, at time.Time) error {
	pipe := r.client.Pipeline()
	pipe.ZAddArgs(ctx, r.domainKey(domain), redis.ZAddArgs{
		GT:      true,
		Members: []redis.Z{{Score: float64(at.UnixMilli()), Member: fingerprint}},
	})
	pipe.SAdd(ctx, r.domainsKey(), domain)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record presence %s/%s: %w", domain, fingerprint, err)
	}
	return nil
}

func (r *RedisTracker) Remove(ctx context.Context, domain, fingerprint string, at time.Time) error {
	err := removeIfNotNewer.Run(ctx, r.client, []string{r.domainKey(domain)},
		fingerprint, strconv.FormatInt(at.UnixMilli(), 10)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("remove presence %s/%s: %w", domain, fingerprint, err)
	}
	return nil
}

func (r *RedisTracker) IsOnline(ctx context.Context, domain, fingerprint string, now time.Time) (bool, error) {
	score, err := r.client.ZScore(ctx, r.domainKey(domain), fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read presence %s/%s: %w", domain, fingerprint, err)
	}
	return online(time.UnixMilli(int64(score)), now, r.timeout), nil
}

func (r *RedisTracker) OnlineCount(ctx context.Context, domain string, now time.Time) (int, error) {
	count, err := r.client.ZCount(ctx, r.domainKey(domain),
		fmt.Sprintf("(%d", r.cutoff(now)), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count presence %s: %w", domain, err)
	}
	return int(count), nil
}

func (r *RedisTracker) OnlineFingerprints(ctx context.Context, domain string, now time.Time) ([]string, error) {
	members, err := r.client.ZRangeByScore(ctx, r.domainKey(domain), &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", r.cutoff(now)),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence %s: %w", domain, err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *RedisTracker) Sweep(ctx context.Context, now time.Time) (int, error) {
	domains, err := r.client.SMembers(ctx, r.domainsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("list presence domains: %w", err)
	}
	upper := strconv.FormatInt(r.cutoff(now), 10)
	evicted := 0
	for _, domain := range domains {
		removed, err := r.client.ZRemRangeByScore(ctx, r.domainKey(domain), "-inf", upper).Result()
		if err != nil {
			return evicted, fmt.Errorf("sweep presence %s: %w", domain, err)
		}
		evicted += int(removed)
	}
	return evicted, nil
}

func (r *RedisTracker) Close() error {
	return r.client.Close()
}

// Ping checks the connection to Redis.
func (r *RedisTracker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
