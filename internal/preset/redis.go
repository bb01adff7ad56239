package preset

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisConfig contains Redis preset store configuration
type RedisConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
}

// RedisStore persists user presets as JSON documents in Redis, keyed by
// preset id under a prefix. Built-ins are served from memory. A zero
// DefaultTTL stores presets without expiry.
type RedisStore struct {
	client *redis.Client
	config *RedisConfig
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	store := &RedisStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Preset store initialized",
		zap.String("backend", "redis"),
		zap.String("redis_url", maskRedisURL(config.URL)),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Int("max_connections", config.MaxConnections))

	return store, nil
}

func (s *RedisStore) key(id string) string {
	return s.config.KeyPrefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Preset, error) {
	for _, b := range BuiltIns() {
		if b.ID == id {
			return b.Clone(), nil
		}
	}

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preset %s: %w", id, err)
	}
	return Import(data)
}

func (s *RedisStore) List(ctx context.Context) ([]*Preset, error) {
	out := BuiltIns()

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.config.KeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan presets: %w", err)
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, s.config.KeyPrefix)
			if isBuiltInID(id) {
				continue
			}
			p, err := s.Get(ctx, id)
			if err != nil {
				s.logger.Warn("Skipping unreadable preset", zap.String("id", id), zap.Error(err))
				continue
			}
			out = append(out, p)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, p *Preset) error {
	if isBuiltInID(p.ID) {
		return fmt.Errorf("%w: %s", ErrBuiltIn, p.ID)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing, err := s.Get(ctx, p.ID); err == nil {
		p.CreatedAt = existing.CreatedAt
		p.Version = existing.Version + 1
	} else {
		p.CreatedAt = now
		p.Version = 1
	}
	p.UpdatedAt = now
	p.BuiltIn = false

	data, err := Export(p)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key(p.ID), data, s.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store preset %s: %w", p.ID, err)
	}

	s.logger.Debug("Preset saved",
		zap.String("id", p.ID),
		zap.Int("version", p.Version))
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if isBuiltInID(id) {
		return fmt.Errorf("%w: %s", ErrBuiltIn, id)
	}
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete preset %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// maskRedisURL hides credentials in the URL for logging
func maskRedisURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "redis://***"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}

var _ Store = (*RedisStore)(nil)
