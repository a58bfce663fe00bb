package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "seriescache:"
	scanBatch     = 256
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store keeps every entry under Prefix+key so Keys and Clear never touch
// foreign data in a shared database.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, prefix: prefix}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.prefix+key, value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}

// Keys returns every key once, sorted. SCAN may repeat keys and has no order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	return trimKeys(raw, s.prefix), nil
}

func trimKeys(raw []string, prefix string) []string {
	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimPrefix(k, prefix)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Clear(ctx context.Context) error {
	raw, err := s.scan(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(raw); start += scanBatch {
		end := start + scanBatch
		if end > len(raw) {
			end = len(raw)
		}
		if err := s.rdb.Del(ctx, raw[start:end]...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, matchPattern(s.prefix), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// matchPattern escapes glob metacharacters in prefix for SCAN MATCH.
func matchPattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString("*")
	return b.String()
}
