package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vikramgaru01/back/core/infra/redisutil"
)

const (
	metaKeyPrefix  = "apk:meta:"
	ownerKeyPrefix = "apk:owner:"
	expiryIndexKey = "apk:expiry"

	defaultOpTimeout = 2 * time.Second
	// metaGrace keeps metadata around past expiry so the sweeper, not the
	// Redis eviction, is the one reclaiming bytes alongside the record.
	metaGrace = 24 * time.Hour
)

// RedisRegistry implements Registry backed by Redis.
type RedisRegistry struct {
	client *redis.Client
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry constructs a Redis-backed registry from a redis:// URL.
func NewRedisRegistry(url string) (*RedisRegistry, error) {
	client, err := redisutil.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisRegistry{client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisRegistry) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping reports backend reachability.
func (s *RedisRegistry) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("registry not initialized")
	}
	return s.client.Ping(ctx).Err()
}

// Put stores a record and indexes it by owner and expiry.
func (s *RedisRegistry) Put(ctx context.Context, rec Record) error {
	if rec.ArtifactID == "" || rec.OwnerID == "" {
		return fmt.Errorf("artifact and owner ids required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt) + metaGrace
	if ttl <= 0 {
		ttl = metaGrace
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, metaKey(rec.OwnerID, rec.ArtifactID), payload, ttl)
	pipe.SAdd(ctx, ownerKey(rec.OwnerID), rec.ArtifactID)
	pipe.ZAdd(ctx, expiryIndexKey, redis.Z{
		Score:  float64(rec.ExpiresAt.Unix()),
		Member: indexMember(rec.OwnerID, rec.ArtifactID),
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns a live record; expired records behave as absent.
func (s *RedisRegistry) Get(ctx context.Context, ownerID, artifactID string) (Record, error) {
	rec, err := s.getAny(ctx, ownerID, artifactID)
	if err != nil {
		return Record{}, err
	}
	if rec.Expired(time.Now()) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// getAny returns the record regardless of expiry.
func (s *RedisRegistry) getAny(ctx context.Context, ownerID, artifactID string) (Record, error) {
	data, err := s.client.Get(ctx, metaKey(ownerID, artifactID)).Bytes()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Find resolves a record by artifact id alone via the expiry index.
func (s *RedisRegistry) Find(ctx context.Context, artifactID string) (Record, error) {
	if artifactID == "" {
		return Record{}, ErrNotFound
	}
	var cursor uint64
	for {
		members, next, err := s.client.ZScan(ctx, expiryIndexKey, cursor, "*:"+artifactID, 200).Result()
		if err != nil {
			return Record{}, err
		}
		// ZScan interleaves members and scores.
		for i := 0; i < len(members); i += 2 {
			owner, id, ok := splitMember(members[i])
			if !ok || id != artifactID {
				continue
			}
			return s.Get(ctx, owner, id)
		}
		if next == 0 {
			return Record{}, ErrNotFound
		}
		cursor = next
	}
}

// ListByOwner returns the owner's unexpired records.
func (s *RedisRegistry) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	ids, err := s.client.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.Get(ctx, metaKey(ownerID, id))
	}
	// Exec reports redis.Nil when any meta key is gone (stale owner-set
	// entry); anything else is a real backend failure, not an empty list.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	now := time.Now()
	for _, id := range ids {
		data, err := cmds[id].Bytes()
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Expired(now) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes a record and its index entries.
func (s *RedisRegistry) Delete(ctx context.Context, ownerID, artifactID string) error {
	pipe := s.client.TxPipeline()
	delCmd := pipe.Del(ctx, metaKey(ownerID, artifactID))
	pipe.SRem(ctx, ownerKey(ownerID), artifactID)
	pipe.ZRem(ctx, expiryIndexKey, indexMember(ownerID, artifactID))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired returns records whose expiry has passed, oldest first.
func (s *RedisRegistry) ListExpired(ctx context.Context, now time.Time, limit int64) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := s.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(members))
	for _, member := range members {
		owner, id, ok := splitMember(member)
		if !ok {
			continue
		}
		rec, err := s.getAny(ctx, owner, id)
		if err != nil {
			// Metadata already evicted; return a stub so the caller can
			// clear the index entry.
			rec = Record{OwnerID: owner, ArtifactID: id}
		}
		out = append(out, rec)
	}
	return out, nil
}

// TryAcquireLock attempts to acquire a named lock with TTL; returns true if acquired.
func (s *RedisRegistry) TryAcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return s.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

// ReleaseLock releases a named lock.
func (s *RedisRegistry) ReleaseLock(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.Del(ctx, key).Result()
	return err
}

func metaKey(ownerID, artifactID string) string {
	return metaKeyPrefix + ownerID + ":" + artifactID
}

func ownerKey(ownerID string) string {
	return ownerKeyPrefix + ownerID
}

func indexMember(ownerID, artifactID string) string {
	return ownerID + ":" + artifactID
}

func splitMember(member string) (owner, id string, ok bool) {
	idx := strings.LastIndex(member, ":")
	if idx <= 0 || idx == len(member)-1 {
		return "", "", false
	}
	return member[:idx], member[idx+1:], true
}
