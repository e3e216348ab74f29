package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/fyrsmithlabs/resolvd/internal/metrics"
)

// maxTxRetries bounds optimistic retries for a single Update. Each failed
// attempt means another writer committed, so this also bounds the number of
// concurrent writers per signature that are guaranteed to make progress.
const maxTxRetries = 128

// RedisStore persists records as JSON under prefix+signature and keeps a
// set of known signatures at prefix+"index". Updates run in a
// WATCH/MULTI transaction and retry when another writer wins.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	metrics *metrics.Metrics
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		metrics: metrics.New(),
	}
}

func (s *RedisStore) key(sig string) string {
	return s.prefix + sig
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

func decodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding pattern record: %w", err)
	}
	if r.StrategyStats == nil {
		r.StrategyStats = make(map[string]Stats)
	}
	return &r, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, sig string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(sig)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading pattern %s: %w", sig, err)
	}
	return decodeRecord(data)
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	sigs, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pattern index: %w", err)
	}
	if len(sigs) == 0 {
		return []*Record{}, nil
	}
	sort.Strings(sigs)

	keys := make([]string, len(sigs))
	for i, sig := range sigs {
		keys[i] = s.key(sig)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading patterns: %w", err)
	}

	out := make([]*Record, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry whose record was deleted concurrently.
			continue
		}
		r, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, sig string, create bool, fn UpdateFunc) (*Record, error) {
	key := s.key(sig)
	var result *Record

	txf := func(tx *redis.Tx) error {
		var work *Record
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if !create {
				return ErrNotFound
			}
			work = newRecord(sig)
		case err != nil:
			return err
		default:
			if work, err = decodeRecord(data); err != nil {
				return err
			}
		}

		if err := fn(work); err != nil {
			return err
		}
		encoded, err := json.Marshal(work)
		if err != nil {
			return fmt.Errorf("encoding pattern record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			pipe.SAdd(ctx, s.indexKey(), sig)
			return nil
		})
		if err == nil {
			result = work
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.metrics.StoreConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return result.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, sig, maxTxRetries)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sig string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sig))
		pipe.SRem(ctx, s.indexKey(), sig)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting pattern %s: %w", sig, err)
	}
	return nil
}

// DeleteIf implements Store.
func (s *RedisStore) DeleteIf(ctx context.Context, sig string, match func(r *Record) bool) (bool, error) {
	key := s.key(sig)
	var removed bool

	txf := func(tx *redis.Tx) error {
		removed = false
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		r, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if !match(r) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.indexKey(), sig)
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			s.metrics.StoreConflicts.Inc()
			continue
		}
		if err != nil {
			return false, fmt.Errorf("deleting pattern %s: %w", sig, err)
		}
		return removed, nil
	}
	return false, fmt.Errorf("%w: %s after %d attempts", ErrConflict, sig, maxTxRetries)
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ Store = (*RedisStore)(nil)
