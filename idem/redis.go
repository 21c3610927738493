package idem

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/xerrors"
)

// 只有持有者能释放锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 校验持有者后写入结果并释放锁
var commitScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("DEL", KEYS[1])
return 1
`)

type redisStore struct {
	conn   connector.RedisConnector
	prefix string
}

func newRedisStore(conn connector.RedisConnector, prefix string) *redisStore {
	return &redisStore{conn: conn, prefix: prefix}
}

func (rs *redisStore) client() (*redis.Client, error) {
	c := rs.conn.GetClient()
	if c == nil {
		return nil, xerrors.New("idem: redis connector is not connected")
	}
	return c, nil
}

func (rs *redisStore) Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error) {
	c, err := rs.client()
	if err != nil {
		return "", false, err
	}
	token, err := newLockToken()
	if err != nil {
		return "", false, err
	}
	ok, err := c.SetNX(ctx, rs.prefix+key+lockSuffix, string(token), ttl).Result()
	if err != nil {
		return "", false, xerrors.Wrap(err, "idem: acquire lock")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (rs *redisStore) Unlock(ctx context.Context, key string, token LockToken) error {
	c, err := rs.client()
	if err != nil {
		return err
	}
	if err := unlockScript.Run(ctx, c, []string{rs.prefix + key + lockSuffix}, string(token)).Err(); err != nil {
		return xerrors.Wrap(err, "idem: release lock")
	}
	return nil
}

func (rs *redisStore) SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error {
	c, err := rs.client()
	if err != nil {
		return err
	}
	keys := []string{rs.prefix + key + lockSuffix, rs.prefix + key + resultSuffix}
	n, err := commitScript.Run(ctx, c, keys, string(token), val, ttl.Milliseconds()).Int()
	if err != nil {
		return xerrors.Wrap(err, "idem: save result")
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (rs *redisStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	c, err := rs.client()
	if err != nil {
		return nil, err
	}
	val, err := c.Get(ctx, rs.prefix+key+resultSuffix).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: get result")
	}
	return val, nil
}
