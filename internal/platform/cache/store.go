// Package cache wraps Redis with best-effort semantics: reads fail open as
// misses, writes fail silent, and the primary request path never blocks on
// an unhealthy backend. The store is a pure optimization layer and must
// never be treated as the system of record.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status describes backend reachability as observed by the store.
type Status int32

const (
	// StatusUnknown means no operation has completed yet.
	StatusUnknown Status = iota
	// StatusAvailable means the last operation reached the backend.
	StatusAvailable
	// StatusUnavailable means operations are skipped until the next probe.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Recorder receives hit/miss observations. Implemented by observability.Metrics.
type Recorder interface {
	CacheHit()
	CacheMiss()
}

// Store is a process-wide, fail-open Redis cache. The availability state is
// owned here and updated only from operation outcomes; request handlers read
// it implicitly through Get/Set and may observe it a little stale, which is
// safe because the fallback is always "treat as a miss".
type Store struct {
	client     *redis.Client
	logger     *slog.Logger
	status     atomic.Int32
	retryAt    atomic.Int64
	probeEvery time.Duration
	recorder   Recorder
}

// NewStore constructs a Store. Dial timeouts and the capped retry/backoff of
// individual commands are configured on the redis.Client itself.
func NewStore(client *redis.Client, logger *slog.Logger) *Store {
	return &Store{
		client:     client,
		logger:     logger,
		probeEvery: 15 * time.Second,
	}
}

// WithRecorder attaches a hit/miss recorder and returns the store.
func (s *Store) WithRecorder(rec Recorder) *Store {
	s.recorder = rec
	return s
}

// Start performs the initial reachability probe. A failure is logged but
// never fatal; the store simply begins life unavailable.
func (s *Store) Start(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.markDown(err)
		return
	}
	s.markUp()
}

// Status returns the current availability state.
func (s *Store) Status() Status {
	return Status(s.status.Load())
}

// Get returns the cached value for key, or ok=false on a miss, expiry, or
// any backend failure. It never returns an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if s == nil || s.client == nil || !s.attemptAllowed() {
		s.recordMiss()
		return nil, false
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.observeFailure(ctx, err)
		} else {
			s.markUp()
		}
		s.recordMiss()
		return nil, false
	}
	s.markUp()
	s.recordHit()
	return payload, true
}

// GetJSON unmarshals the cached value into dest. A corrupt entry counts as a
// miss and is deleted so the next read repopulates it.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) bool {
	payload, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		s.Delete(ctx, key)
		return false
	}
	return true
}

// Set stores value under key with the given TTL. No-op on backend failure.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if s == nil || s.client == nil || !s.attemptAllowed() {
		return
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.observeFailure(ctx, err)
		return
	}
	s.markUp()
}

// SetJSON marshals value and stores it under key. Marshal failures are
// silently dropped; the caller still holds the authoritative value.
func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.Set(ctx, key, payload, ttl)
}

// Delete removes the given keys. No-op on backend failure.
func (s *Store) Delete(ctx context.Context, keys ...string) {
	if s == nil || s.client == nil || len(keys) == 0 || !s.attemptAllowed() {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.observeFailure(ctx, err)
		return
	}
	s.markUp()
}

// DeleteByPattern removes every key matching the glob pattern, e.g.
// "agent_metrics:42*". Bulk prefix invalidation trades hit rate for
// correctness simplicity after writes. Uses SCAN so large keyspaces do not
// block the backend.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) {
	if s == nil || s.client == nil || pattern == "" || !s.attemptAllowed() {
		return
	}
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				s.observeFailure(ctx, err)
				return
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		s.observeFailure(ctx, err)
		return
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			s.observeFailure(ctx, err)
			return
		}
	}
	s.markUp()
}

// Fetch loads a cached JSON value or populates it from loader on a miss.
// Loader errors propagate; cache failures on either side do not.
func (s *Store) Fetch(ctx context.Context, key string, ttl time.Duration, dest any, loader func(context.Context) (any, error)) error {
	if s.GetJSON(ctx, key, dest) {
		return nil
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.Set(ctx, key, raw, ttl)
	return json.Unmarshal(raw, dest)
}

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// attemptAllowed reports whether an operation should reach the backend.
// While unavailable, one probe per probeEvery interval is let through.
func (s *Store) attemptAllowed() bool {
	if Status(s.status.Load()) != StatusUnavailable {
		return true
	}
	now := time.Now().UnixNano()
	retry := s.retryAt.Load()
	if now < retry {
		return false
	}
	// Claim the probe slot; losers stay short-circuited.
	return s.retryAt.CompareAndSwap(retry, now+s.probeEvery.Nanoseconds())
}

// observeFailure classifies an operation error. Caller-side cancellation is
// not evidence about backend health.
func (s *Store) observeFailure(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.markDown(err)
}

func (s *Store) markUp() {
	if Status(s.status.Swap(int32(StatusAvailable))) == StatusUnavailable && s.logger != nil {
		s.logger.Info("cache backend recovered")
	}
}

func (s *Store) markDown(err error) {
	s.retryAt.Store(time.Now().Add(s.probeEvery).UnixNano())
	if Status(s.status.Swap(int32(StatusUnavailable))) != StatusUnavailable && s.logger != nil {
		s.logger.Warn("cache backend unavailable, degrading to direct reads", slog.Any("error", err))
	}
}

func (s *Store) recordHit() {
	if s != nil && s.recorder != nil {
		s.recorder.CacheHit()
	}
}

func (s *Store) recordMiss() {
	if s != nil && s.recorder != nil {
		s.recorder.CacheMiss()
	}
}
