package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/metrics"
	"github.com/ceyewan/dealflow/xerrors"
)

// tokenBucketScript 基于时间戳的令牌桶
//
// KEYS[1] 桶键；ARGV: rate, burst, now(秒，浮点), requested
// 键中保存下一个令牌可用的时间戳。返回 {allowed, remaining}。
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local interval = 1 / rate
local fill_time = burst * interval

local tat = tonumber(redis.call("GET", KEYS[1]))
if tat == nil then
  tat = now
end
tat = math.max(tat, now)

local new_tat = tat + requested * interval
local allow_at_most = now + fill_time

if new_tat <= allow_at_most then
  redis.call("SET", KEYS[1], new_tat, "EX", math.ceil(fill_time * 2))
  return {1, math.floor((allow_at_most - new_tat) / interval)}
end
return {0, math.floor((allow_at_most - tat) / interval)}
`

type distributedLimiter struct {
	client *redis.Client
	prefix string
	logger clog.Logger
	clock  clock.Clock
	checks metrics.Counter
	script *redis.Script
}

func newDistributed(cfg *Config, o *options) (*distributedLimiter, error) {
	client := o.redis.GetClient()
	if client == nil {
		return nil, connector.ErrNotConnected
	}
	l := &distributedLimiter{
		client: client,
		prefix: cfg.Prefix,
		logger: o.logger,
		clock:  o.clock,
		checks: checkCounter(o.meter),
		script: redis.NewScript(tokenBucketScript),
	}
	l.logger.Info("distributed rate limiter created", clog.String("prefix", cfg.Prefix))
	return l, nil
}

func (l *distributedLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *distributedLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if err := checkArgs(key, limit, n); err != nil {
		return false, err
	}

	now := float64(l.clock.Now().UnixNano()) / float64(time.Second)
	res, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, limit.Rate, limit.Burst, now, n).Int64Slice()
	if err != nil {
		l.logger.ErrorContext(ctx, "rate limit script failed", clog.String("key", key), clog.Error(err))
		return false, xerrors.Wrap(err, "run rate limit script")
	}
	if len(res) != 2 {
		return false, xerrors.New("ratelimit: unexpected script result")
	}

	allowed := res[0] == 1
	l.checks.Inc(ctx, metrics.L(LabelMode, ModeDistributed), metrics.L(LabelResult, resultLabel(allowed)))
	if !allowed {
		l.logger.DebugContext(ctx, "rate limited", clog.String("key", key), clog.Int64("remaining", res[1]))
	}
	return allowed, nil
}

// Close 连接由 connector 管理
func (l *distributedLimiter) Close() error {
	return nil
}
