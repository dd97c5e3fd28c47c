package procstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mimo-os/runtime/procedure"
)

// RedisStore provides a Redis-backed implementation of the Store interface.
// It uses JSON serialization and is suitable for distributed gateway
// deployments where several nodes share one procedure catalog.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	finishedTTL time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix for Redis keys. Default is "mimo".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithFinishedTTL sets a time-to-live applied to execution records once they
// reach a terminal status. Default is 0, meaning finished executions are
// kept forever (the audit trail never expires unless asked to).
func WithFinishedTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.finishedTTL = ttl
	}
}

// NewRedisStore creates a new Redis-backed store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithPrefix("mimo"),
//	    WithFinishedTTL(30 * 24 * time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "mimo",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// SaveProcedure persists a new procedure version.
// Uses a pipeline to batch the record write, the version index update, and
// the hash pointer into a single round-trip.
func (s *RedisStore) SaveProcedure(ctx context.Context, p *procedure.Procedure) error {
	if p == nil || p.Definition == nil {
		return ErrInvalidRecord
	}
	if p.Name == "" || p.Version == "" {
		return ErrInvalidID
	}

	key := s.procedureKey(p.Name, p.Version)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists failed: %w", err)
	}
	if exists > 0 {
		return ErrVersionExists
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal procedure: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, s.versionsKey(p.Name), p.Version)
	if p.Hash != "" {
		pipe.Set(ctx, s.hashKey(p.Hash), key, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetProcedure retrieves a procedure by name and version.
func (s *RedisStore) GetProcedure(ctx context.Context, name, version string) (*procedure.Procedure, error) {
	if name == "" || version == "" {
		return nil, ErrInvalidID
	}
	return s.getProcedureAt(ctx, s.procedureKey(name, version))
}

// GetProcedureByHash retrieves a procedure by content fingerprint. The hash
// key holds a pointer to the record key, so renames never duplicate data.
func (s *RedisStore) GetProcedureByHash(ctx context.Context, hash string) (*procedure.Procedure, error) {
	if hash == "" {
		return nil, ErrInvalidID
	}

	key, err := s.client.Get(ctx, s.hashKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return s.getProcedureAt(ctx, key)
}

// ListVersions returns every stored version of the named procedure.
func (s *RedisStore) ListVersions(ctx context.Context, name string) ([]*procedure.Procedure, error) {
	if name == "" {
		return nil, ErrInvalidID
	}

	versions, err := s.client.SMembers(ctx, s.versionsKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	out := make([]*procedure.Procedure, 0, len(versions))
	for _, version := range versions {
		rec, err := s.getProcedureAt(ctx, s.procedureKey(name, version))
		if errors.Is(err, ErrNotFound) {
			// Index entry without a record; skip rather than fail the listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SetActive flips the soft-delete flag on a procedure version.
func (s *RedisStore) SetActive(ctx context.Context, name, version string, active bool) (*procedure.Procedure, error) {
	if name == "" || version == "" {
		return nil, ErrInvalidID
	}

	key := s.procedureKey(name, version)
	rec, err := s.getProcedureAt(ctx, key)
	if err != nil {
		return nil, err
	}
	rec.Active = active

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal procedure: %w", err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis set failed: %w", err)
	}
	return rec, nil
}

// CreateExecution persists a new execution record.
func (s *RedisStore) CreateExecution(ctx context.Context, e *Execution) error {
	if e == nil {
		return ErrInvalidRecord
	}
	if e.ID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.executionKey(e.ID), data, 0)
	pipe.SAdd(ctx, s.executionIndexKey(), e.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// UpdateExecution replaces the stored record. Terminal records are given
// the configured finished TTL.
func (s *RedisStore) UpdateExecution(ctx context.Context, e *Execution) error {
	if e == nil {
		return ErrInvalidRecord
	}
	if e.ID == "" {
		return ErrInvalidID
	}

	key := s.executionKey(e.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists failed: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	var ttl time.Duration
	if e.Status.Terminal() {
		ttl = s.finishedTTL
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution record by ID.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.executionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec Execution
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &rec, nil
}

// ListExecutions returns execution records matching opts, newest first.
// Records that expired out from under the index are skipped.
func (s *RedisStore) ListExecutions(ctx context.Context, opts ListOptions) ([]*Execution, error) {
	ids, err := s.client.SMembers(ctx, s.executionIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}

	matched := make([]*Execution, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetExecution(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.ProcedureName != "" && rec.ProcedureName != opts.ProcedureName {
			continue
		}
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		matched = append(matched, rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *RedisStore) getProcedureAt(ctx context.Context, key string) (*procedure.Procedure, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rec procedure.Procedure
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal procedure: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) procedureKey(name, version string) string {
	return s.prefix + ":procedure:" + name + ":" + version
}

func (s *RedisStore) versionsKey(name string) string {
	return s.prefix + ":procedure-versions:" + name
}

func (s *RedisStore) hashKey(hash string) string {
	return s.prefix + ":procedure-hash:" + hash
}

func (s *RedisStore) executionKey(id string) string {
	return s.prefix + ":execution:" + id
}

func (s *RedisStore) executionIndexKey() string {
	return s.prefix + ":executions"
}
