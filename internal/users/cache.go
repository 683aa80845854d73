package users

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyList   = "users:list"
	cacheKeyPrefix = "users:id:"

	// version keys count writes to the record they guard
	versionKeyList   = "users:ver:list"
	versionKeyPrefix = "users:ver:id:"
	versionKeyTTL    = 24 * time.Hour
)

// cacheEntry is the cached form of a User. Unlike User it encodes the
// password hash.
type cacheEntry struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toCacheEntry(u *User) cacheEntry {
	return cacheEntry{
		ID:           u.ID,
		Name:         u.Name,
		Login:        u.Login,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (e cacheEntry) user() *User {
	return &User{
		ID:           e.ID,
		Name:         e.Name,
		Login:        e.Login,
		PasswordHash: e.PasswordHash,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// CachedStore decorates a UserStore with a Redis read-through cache.
// Writes go to the wrapped store first and then bump the version of every
// affected key and drop it. A read fills the cache only when the version it
// saw before reading the wrapped store is still current, so a fill can never
// put back a record that a concurrent write replaced or deleted.
// Redis failures are logged and never fail the operation.
type CachedStore struct {
	next   UserStore
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStore returns a CachedStore wrapping next
func NewCachedStore(next UserStore, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// ListUsers returns the cached list, loading it from the wrapped store on a miss
func (c *CachedStore) ListUsers(ctx context.Context) ([]*User, error) {
	var entries []cacheEntry
	if c.get(ctx, cacheKeyList, &entries) {
		list := make([]*User, 0, len(entries))
		for _, e := range entries {
			list = append(list, e.user())
		}
		return list, nil
	}

	version, versionOK := c.version(ctx, versionKeyList)

	list, err := c.next.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	if versionOK {
		entries = make([]cacheEntry, 0, len(list))
		for _, u := range list {
			entries = append(entries, toCacheEntry(u))
		}
		c.fill(ctx, cacheKeyList, versionKeyList, version, entries)
	}
	return list, nil
}

// GetUser returns the cached user, loading it from the wrapped store on a miss
func (c *CachedStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	key := userKey(id)

	var entry cacheEntry
	if c.get(ctx, key, &entry) {
		return entry.user(), nil
	}

	versionKey := userVersionKey(id)
	version, versionOK := c.version(ctx, versionKey)

	user, err := c.next.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if versionOK {
		c.fill(ctx, key, versionKey, version, toCacheEntry(user))
	}
	return user, nil
}

// CreateUser stores the user and drops the cached list
func (c *CachedStore) CreateUser(ctx context.Context, user *User) error {
	if err := c.next.CreateUser(ctx, user); err != nil {
		return err
	}
	c.invalidate(ctx, map[string]string{cacheKeyList: versionKeyList})
	return nil
}

// UpdateUser updates the user and drops its cached entry and the cached list
func (c *CachedStore) UpdateUser(ctx context.Context, id uuid.UUID, patch *UserPatch) (*User, error) {
	user, err := c.next.UpdateUser(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, map[string]string{
		userKey(id):  userVersionKey(id),
		cacheKeyList: versionKeyList,
	})
	return user, nil
}

// DeleteUser deletes the user and drops its cached entry and the cached list
func (c *CachedStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := c.next.DeleteUser(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, map[string]string{
		userKey(id):  userVersionKey(id),
		cacheKeyList: versionKeyList,
	})
	return nil
}

func (c *CachedStore) get(ctx context.Context, key string, dst any) bool {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("User cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		c.logger.Warn("User cache entry is corrupt", zap.String("key", key), zap.Error(err))
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("User cache delete failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// version reads the write counter guarding a key. A missing counter is 0.
// ok is false when Redis could not be read, in which case the caller must not fill.
func (c *CachedStore) version(ctx context.Context, versionKey string) (int64, bool) {
	v, err := c.rdb.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("User cache version read failed", zap.String("key", versionKey), zap.Error(err))
		return 0, false
	}
	return v, true
}

// fill stores value under key if versionKey still holds seen. The check and
// the write run under WATCH, so a write that bumps the version in between
// aborts the fill.
func (c *CachedStore) fill(ctx context.Context, key, versionKey string, seen int64, value any) {
	b, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("User cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != seen {
			return errStaleFill
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, c.ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("User cache fill skipped after concurrent write", zap.String("key", key))
	default:
		c.logger.Warn("User cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate bumps the version of each key and drops it in one transaction.
// keys maps a cache key to its version key.
func (c *CachedStore) invalidate(ctx context.Context, keys map[string]string) {
	cacheKeys := make([]string, 0, len(keys))
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, versionKey := range keys {
			pipe.Incr(ctx, versionKey)
			pipe.Expire(ctx, versionKey, versionKeyTTL)
			pipe.Del(ctx, key)
			cacheKeys = append(cacheKeys, key)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("User cache invalidation failed", zap.Strings("keys", cacheKeys), zap.Error(err))
	}
}

var errStaleFill = errors.New("cache fill is stale")

func userKey(id uuid.UUID) string {
	return cacheKeyPrefix + id.String()
}

func userVersionKey(id uuid.UUID) string {
	return versionKeyPrefix + id.String()
}
