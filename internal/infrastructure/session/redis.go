package session

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"duochat/pkg/logger"
)

const (
	userKeyPrefix = "session:user:"
	connKeyPrefix = "session:conn:"

	// Sessions expire server-side as a safety net against instances that
	// die without unregistering; live connections are re-registered well
	// within this window by the websocket ping cycle.
	sessionTTL = 24 * time.Hour
)

// RedisRegistry externalizes the session mapping so that presence checks and
// private-destination routing work when connections are spread across
// multiple process instances.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(addr, password string, db int) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisRegistry{client: client}, nil
}

var _ Registry = (*RedisRegistry)(nil)

func (r *RedisRegistry) Register(ctx context.Context, userID, connID string) error {
	userKey := userKeyPrefix + userID
	connKey := connKeyPrefix + connID

	// Watch the forward key so a concurrent register for the same user
	// retries instead of leaving a dangling reverse entry.
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, userKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		// The connection may re-register as a different user; its previous
		// user's forward entry must not survive as an orphan.
		prevUser, err := tx.Get(ctx, connKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		stale := ""
		if prevUser != "" && prevUser != userID {
			current, err := tx.Get(ctx, userKeyPrefix+prevUser).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if current == connID {
				stale = userKeyPrefix + prevUser
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if old != "" && old != connID {
				pipe.Del(ctx, connKeyPrefix+old)
			}
			if stale != "" {
				pipe.Del(ctx, stale)
			}
			pipe.Set(ctx, userKey, connID, sessionTTL)
			pipe.Set(ctx, connKey, userID, sessionTTL)
			return nil
		})
		return err
	}, userKey, connKey)
}

func (r *RedisRegistry) Unregister(ctx context.Context, connID string) error {
	connKey := connKeyPrefix + connID

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		userID, err := tx.Get(ctx, connKey).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}

		userKey := userKeyPrefix + userID
		current, err := tx.Get(ctx, userKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, connKey)
			// Only drop the forward entry if it still points at this
			// connection; a newer register may have replaced it already.
			if current == connID {
				pipe.Del(ctx, userKey)
			}
			return nil
		})
		return err
	}, connKey)
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID string) bool {
	n, err := r.client.Exists(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		logger.Warn("session: redis exists failed for user %s: %v", userID, err)
		return false
	}
	return n > 0
}

func (r *RedisRegistry) Lookup(ctx context.Context, userID string) (string, bool) {
	connID, err := r.client.Get(ctx, userKeyPrefix+userID).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.Warn("session: redis get failed for user %s: %v", userID, err)
		return "", false
	}
	return connID, true
}

func (r *RedisRegistry) UserFor(ctx context.Context, connID string) (string, bool) {
	userID, err := r.client.Get(ctx, connKeyPrefix+connID).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.Warn("session: redis get failed for conn %s: %v", connID, err)
		return "", false
	}
	return userID, true
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
