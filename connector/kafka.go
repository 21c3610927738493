package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"

	"github.com/twmb/franz-go/pkg/kgo"
)

type kafkaConnector struct {
	cfg     *KafkaConfig
	opts    *options
	logger  clog.Logger
	healthy atomic.Bool

	mu     sync.RWMutex
	client *kgo.Client
}

// NewKafka 创建 Kafka 连接器
func NewKafka(cfg *KafkaConfig, opts ...Option) (KafkaConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid kafka config")
	}
	o := applyOptions(opts...)
	return &kafkaConnector{
		cfg:    cfg,
		opts:   o,
		logger: o.logger.With(clog.String("connector", "kafka"), clog.String("name", cfg.Name)),
	}, nil
}

func (c *kafkaConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}
	c.logger.Info("connecting to kafka", clog.Any("seeds", c.cfg.Seed))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(c.cfg.Seed...),
		kgo.ClientID(c.cfg.ClientID),
		kgo.RequestTimeoutOverhead(c.cfg.RequestTimeout),
		kgo.WithLogger(&kgoLogger{logger: c.logger}),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return xerrors.Wrapf(err, "kafka connector[%s]: create client", c.cfg.Name)
	}

	// franz-go 异步建连，用 Ping 确认至少一个 broker 可达
	err = dial(ctx, c.opts, c.logger, c.cfg.Dial, client.Ping)
	if err != nil {
		client.Close()
		c.logger.Error("kafka connection failed", clog.Error(err))
		return xerrors.Wrapf(err, "kafka connector[%s]", c.cfg.Name)
	}

	c.client = client
	c.healthy.Store(true)
	c.logger.Info("connected to kafka")
	return nil
}

func (c *kafkaConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if c.client != nil {
		c.client.Close()
		c.client = nil
		c.logger.Info("kafka connection closed")
	}
	return nil
}

func (c *kafkaConnector) HealthCheck(ctx context.Context) error {
	client := c.GetClient()
	if client == nil {
		return ErrNotConnected
	}
	if err := client.Ping(ctx); err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "kafka connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *kafkaConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *kafkaConnector) Name() string { return "kafka:" + c.cfg.Name }

func (c *kafkaConnector) Seeds() []string { return append([]string(nil), c.cfg.Seed...) }

func (c *kafkaConnector) ClientID() string { return c.cfg.ClientID }

func (c *kafkaConnector) GetClient() *kgo.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// kgoLogger 把 franz-go 的日志转到 clog
type kgoLogger struct {
	logger clog.Logger
}

func (l *kgoLogger) Level() kgo.LogLevel {
	return kgo.LogLevelWarn
}

func (l *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]clog.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			fields = append(fields, clog.Any(key, keyvals[i+1]))
		}
	}
	switch level {
	case kgo.LogLevelError:
		l.logger.Error(msg, fields...)
	case kgo.LogLevelWarn:
		l.logger.Warn(msg, fields...)
	case kgo.LogLevelInfo:
		l.logger.Info(msg, fields...)
	default:
		l.logger.Debug(msg, fields...)
	}
}

// NewKgoLogger 返回写入 clog 的 franz-go Logger，供独立创建的消费者客户端使用
func NewKgoLogger(logger clog.Logger) kgo.Logger {
	return &kgoLogger{logger: logger}
}
