package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/xerrors"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisLocker struct {
	conn   connector.RedisConnector
	cfg    Config
	logger clog.Logger
}

func (l *redisLocker) client() (*redis.Client, error) {
	c := l.conn.GetClient()
	if c == nil {
		return nil, xerrors.New("dlock: redis connector is not connected")
	}
	return c, nil
}

func (l *redisLocker) Lock(ctx context.Context, key string) (Lease, error) {
	return retry(ctx, l.cfg.RetryInterval, func() (Lease, bool, error) {
		return l.TryLock(ctx, key)
	})
}

func (l *redisLocker) TryLock(ctx context.Context, key string) (Lease, bool, error) {
	if key == "" {
		return nil, false, ErrKeyEmpty
	}
	c, err := l.client()
	if err != nil {
		return nil, false, err
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, false, xerrors.Wrap(err, "dlock: generate token")
	}
	token := hex.EncodeToString(b)

	redisKey := l.cfg.Prefix + key
	ok, err := c.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
	if err != nil {
		return nil, false, xerrors.Wrap(err, "dlock: acquire")
	}
	if !ok {
		return nil, false, nil
	}

	lease := &redisLease{
		client:   c,
		key:      key,
		redisKey: redisKey,
		token:    token,
		ttl:      l.cfg.TTL,
		logger:   l.logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go lease.watchdog()
	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key))
	return lease, true, nil
}

type redisLease struct {
	client   *redis.Client
	key      string
	redisKey string
	token    string
	ttl      time.Duration
	logger   clog.Logger
	once     sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (rl *redisLease) Key() string { return rl.key }

func (rl *redisLease) Unlock(ctx context.Context) error {
	var err error
	rl.once.Do(func() {
		close(rl.stop)
		<-rl.done

		var n int
		n, err = releaseScript.Run(ctx, rl.client, []string{rl.redisKey}, rl.token).Int()
		if err != nil {
			err = xerrors.Wrap(err, "dlock: release")
			return
		}
		if n == 0 {
			err = xerrors.Wrapf(ErrOwnershipLost, "key: %s", rl.key)
		}
	})
	return err
}

// watchdog 持有期间每 TTL/3 续期一次
func (rl *redisLease) watchdog() {
	defer close(rl.done)
	interval := max(rl.ttl/3, 100*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := renewScript.Run(ctx, rl.client, []string{rl.redisKey}, rl.token, rl.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				rl.logger.Warn("lock renew failed", clog.String("key", rl.key), clog.Error(err))
				continue
			}
			if n == 0 {
				rl.logger.Warn("lock ownership lost", clog.String("key", rl.key))
				return
			}
		}
	}
}
