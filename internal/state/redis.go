package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Prefix     string // key prefix, default "arbiter"
	HistoryCap int    // versions kept per session, default 50
	TTL        time.Duration
}

// DefaultRedisConfig returns the standard prefix and history cap with no expiry.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Prefix: "arbiter", HistoryCap: 50}
}

// RedisStore keeps the current version of each session as JSON under
// "{prefix}:session:{id}" and the newest versions in "{prefix}:history:{id}".
type RedisStore struct {
	client redis.UniversalClient
	config RedisConfig
	now    func() time.Time
}

var _ SessionStore = (*RedisStore)(nil)

// NewRedisStore wraps a go-redis client. Client, ClusterClient and Ring all satisfy UniversalClient.
func NewRedisStore(client redis.UniversalClient, config RedisConfig) *RedisStore {
	if config.Prefix == "" {
		config.Prefix = "arbiter"
	}
	if config.HistoryCap <= 0 {
		config.HistoryCap = 50
	}
	return &RedisStore{client: client, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// DialRedis connects to addr and pings it.
func DialRedis(ctx context.Context, addr string, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client, config), nil
}

func (r *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.config.Prefix, id)
}

func (r *RedisStore) historyKey(id string) string {
	return fmt.Sprintf("%s:history:%s", r.config.Prefix, id)
}

func (r *RedisStore) indexKey() string {
	return r.config.Prefix + ":sessions"
}

// Load returns the current version of a session.
func (r *RedisStore) Load(ctx context.Context, id string) (Session, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return sess, nil
}

// Save writes a new version parented on the current one.
func (r *RedisStore) Save(ctx context.Context, sess Session) (Session, error) {
	current, err := r.Load(ctx, sess.ID)
	switch {
	case err == nil:
		sess.ParentID = current.VersionID
	case errors.Is(err, ErrNotFound):
		sess.ParentID = ""
	default:
		return Session{}, err
	}

	sess.VersionID = uuid.New().String()
	sess.CreatedAt = r.now()
	raw, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("marshal session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(sess.ID), raw, r.config.TTL)
		pipe.LPush(ctx, r.historyKey(sess.ID), raw)
		pipe.LTrim(ctx, r.historyKey(sess.ID), 0, int64(r.config.HistoryCap-1))
		pipe.SAdd(ctx, r.indexKey(), sess.ID)
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return sess, nil
}

// History returns up to limit versions, newest first.
func (r *RedisStore) History(ctx context.Context, id string, limit int) ([]Session, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := r.client.LRange(ctx, r.historyKey(id), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list history %s: %w", id, err)
	}
	out := make([]Session, 0, len(items))
	for _, item := range items {
		var sess Session
		if err := json.Unmarshal([]byte(item), &sess); err != nil {
			return nil, fmt.Errorf("unmarshal history entry: %w", err)
		}
		out = append(out, sess)
	}
	return out, nil
}

// Rollback makes a retained version current again. Versions trimmed past the cap are gone.
func (r *RedisStore) Rollback(ctx context.Context, id, versionID string) error {
	versions, err := r.History(ctx, id, 0)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.VersionID != versionID {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		if err := r.client.Set(ctx, r.sessionKey(id), raw, r.config.TTL).Err(); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return nil
	}
	return fmt.Errorf("version %s of session %s: %w", versionID, id, ErrNotFound)
}

// List returns every session ID in the index set, sorted.
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
