// Package redisstore implements storage.Store on Redis.
//
// Layout, relative to the key prefix:
//
//	ledger:<pipeline>              hash   id, created_at_ms
//	ledger:<pipeline>:envs         set    environment names with commits
//	ledger:<pipeline>:env:<name>   hash   revision id -> unix millis
//	owner:<id>                     string JSON owner
//	item:<id>                      string JSON collector item
//
// Every write to a ledger uses HSETNX so the first writer wins. The ledger
// header is written by a Lua script so both fields appear together.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
)

// DefaultKeyPrefix is used when no prefix is configured.
const DefaultKeyPrefix = "stagetrack"

// createLedgerScript writes both header fields only when the ledger hash has
// no id yet, so readers never observe a half-written header.
var createLedgerScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], "id", ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "created_at_ms", ARGV[2])
return 1
`)

// Store implements storage.Store using Redis.
type Store struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

var _ storage.Store = (*Store)(nil)

// New wraps an existing client. The store owns the client and closes it on Close.
func New(rdb redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *Store) key(parts ...string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, strings.Join(parts, ":"))
}

func (s *Store) ledgerKey(pipelineID string) string {
	return s.key("ledger", pipelineID)
}

func (s *Store) envsKey(pipelineID string) string {
	return s.key("ledger", pipelineID, "envs")
}

func (s *Store) envKey(pipelineID, environment string) string {
	return s.key("ledger", pipelineID, "env", environment)
}

func (s *Store) FindLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error) {
	fields, err := s.rdb.HGetAll(ctx, s.ledgerKey(pipelineID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get ledger %s: %w", pipelineID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("ledger for pipeline %s: %w", pipelineID, storage.ErrNotFound)
	}

	ms, err := strconv.ParseInt(fields["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: created_at_ms: %w", pipelineID, err)
	}
	ledger := domain.NewLedger(fields["id"], pipelineID)
	ledger.CreatedAt = time.UnixMilli(ms).UTC()

	envs, err := s.rdb.SMembers(ctx, s.envsKey(pipelineID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list environments for %s: %w", pipelineID, err)
	}
	if len(envs) == 0 {
		return ledger, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(envs))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, env := range envs {
			cmds[i] = pipe.HGetAll(ctx, s.envKey(pipelineID, env))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load environments for %s: %w", pipelineID, err)
	}

	for i, env := range envs {
		for rev, raw := range cmds[i].Val() {
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("ledger %s: environment %s: revision %s: %w", pipelineID, env, rev, err)
			}
			ledger.Record(env, domain.CommitEntry{RevisionID: rev, Timestamp: time.UnixMilli(ms).UTC()})
		}
	}
	return ledger, nil
}

// ensureLedger writes the ledger header unless it exists and reports whether
// this call created it.
func (s *Store) ensureLedger(ctx context.Context, ledger *domain.Ledger) (bool, error) {
	created, err := createLedgerScript.Run(ctx, s.rdb,
		[]string{s.ledgerKey(ledger.PipelineID)},
		ledger.ID, ledger.CreatedAt.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("create ledger %s: %w", ledger.PipelineID, err)
	}
	return created == 1, nil
}

func (s *Store) CreateLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error) {
	ledger := domain.NewLedger(uuid.NewString(), pipelineID)
	created, err := s.ensureLedger(ctx, ledger)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("ledger for pipeline %s: %w", pipelineID, storage.ErrAlreadyExists)
	}
	return ledger, nil
}

func (s *Store) RecordCommit(ctx context.Context, pipelineID, environment string, entry domain.CommitEntry) (bool, error) {
	if _, err := s.ensureLedger(ctx, domain.NewLedger(uuid.NewString(), pipelineID)); err != nil {
		return false, err
	}

	var written *redis.BoolCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.envsKey(pipelineID), environment)
		written = pipe.HSetNX(ctx, s.envKey(pipelineID, environment), entry.RevisionID, entry.Timestamp.UnixMilli())
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("record commit %s in %s/%s: %w", entry.RevisionID, pipelineID, environment, err)
	}
	return written.Val(), nil
}

func (s *Store) FindOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	var owner domain.Owner
	if err := s.getJSON(ctx, s.key("owner", ownerID), &owner); err != nil {
		return nil, fmt.Errorf("owner %s: %w", ownerID, err)
	}
	return &owner, nil
}

func (s *Store) SaveOwner(ctx context.Context, owner *domain.Owner) error {
	if owner.ID == "" {
		return fmt.Errorf("owner id is required")
	}
	return s.setJSON(ctx, s.key("owner", owner.ID), owner)
}

func (s *Store) FindCollectorItem(ctx context.Context, id string) (*domain.CollectorItem, error) {
	var item domain.CollectorItem
	if err := s.getJSON(ctx, s.key("item", id), &item); err != nil {
		return nil, fmt.Errorf("collector item %s: %w", id, err)
	}
	return &item, nil
}

func (s *Store) SaveCollectorItem(ctx context.Context, item *domain.CollectorItem) error {
	if item.ID == "" {
		return fmt.Errorf("collector item id is required")
	}
	return s.setJSON(ctx, s.key("item", item.ID), item)
}

func (s *Store) getJSON(ctx context.Context, key string, out any) error {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, data, 0).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
