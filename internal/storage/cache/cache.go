// Package cache puts a Redis read-through cache in front of award listings.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	keyhash "github.com/JakeFAU/award-digest/internal/hash/sha256"
)

// DefaultTTL keeps a listing for half an hour.
const DefaultTTL = 30 * time.Minute

const (
	defaultPrefix     = "awards:list:"
	connectionTimeout = 5 * time.Second
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// Config holds the Redis connection and cache settings.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Lister serves listings from Redis and falls through to next on a miss.
// Redis failures degrade to uncached reads.
type Lister struct {
	next   award.Lister
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewLister wraps next with a cache.
func NewLister(next award.Lister, client redis.UniversalClient, cfg Config, logger *zap.Logger) *Lister {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{next: next, client: client, ttl: cfg.TTL, prefix: cfg.Prefix, logger: logger.Named("cache")}
}

// List implements award.Lister.
func (l *Lister) List(ctx context.Context, q award.Query) ([]award.Record, error) {
	key := l.key(q)
	raw, err := l.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var records []award.Record
		if jsonErr := json.Unmarshal(raw, &records); jsonErr == nil {
			return records, nil
		}
		l.logger.Warn("discarding unreadable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		l.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	records, err := l.next.List(ctx, q)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return records, nil
	}
	if err := l.client.Set(ctx, key, payload, l.ttl).Err(); err != nil {
		l.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return records, nil
}

// Invalidate drops every cached listing.
func (l *Lister) Invalidate(ctx context.Context) error {
	iter := l.client.Scan(ctx, 0, l.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}
	return nil
}

// Wrap returns a store that invalidates the cache after every accepted chunk,
// so a listing never lags behind a finished cycle.
func (l *Lister) Wrap(store award.Store) award.Store {
	return invalidatingStore{next: store, cache: l}
}

type invalidatingStore struct {
	next  award.Store
	cache *Lister
}

func (s invalidatingStore) Upsert(ctx context.Context, records []award.Record) error {
	if err := s.next.Upsert(ctx, records); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.cache.logger.Warn("cache invalidation failed", zap.Error(err))
	}
	return nil
}

func (l *Lister) key(q award.Query) string {
	categories := make([]string, 0, len(q.Categories))
	for _, c := range q.Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			categories = append(categories, c)
		}
	}
	slices.Sort(categories)
	return l.prefix + keyhash.Key(
		dateKey(q.From),
		dateKey(q.To),
		strconv.FormatFloat(q.MinValue, 'f', -1, 64),
		strings.Join(categories, ","),
		strconv.Itoa(q.Limit),
	)
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(award.DateLayout)
}
