package connector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"

	"github.com/nats-io/nats.go"
)

type natsConnector struct {
	cfg     *NATSConfig
	opts    *options
	logger  clog.Logger
	healthy atomic.Bool

	mu   sync.RWMutex
	conn *nats.Conn
}

// NewNATS 创建 NATS 连接器
func NewNATS(cfg *NATSConfig, opts ...Option) (NATSConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid nats config")
	}
	o := applyOptions(opts...)
	return &natsConnector{
		cfg:    cfg,
		opts:   o,
		logger: o.logger.With(clog.String("connector", "nats"), clog.String("name", cfg.Name)),
	}, nil
}

func (c *natsConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	c.logger.Info("connecting to nats", clog.String("url", c.cfg.URL))

	var conn *nats.Conn
	err := dial(ctx, c.opts, c.logger, c.cfg.Dial, func(ctx context.Context) error {
		nc, err := nats.Connect(c.cfg.URL, c.natsOptions(ctx)...)
		if err != nil {
			return err
		}
		conn = nc
		return nil
	})
	if err != nil {
		c.logger.Error("nats connection failed", clog.Error(err))
		return xerrors.Wrapf(err, "nats connector[%s]", c.cfg.Name)
	}

	c.conn = conn
	c.healthy.Store(true)
	c.logger.Info("connected to nats", clog.String("server", conn.ConnectedUrl()))
	return nil
}

func (c *natsConnector) natsOptions(ctx context.Context) []nats.Option {
	timeout := c.cfg.ConnectTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < timeout {
			timeout = left
		}
	}
	opts := []nats.Option{
		nats.Name("dealflow-" + c.cfg.Name),
		nats.Timeout(timeout),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.PingInterval(c.cfg.PingInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.healthy.Store(false)
			if err != nil {
				c.logger.Warn("nats disconnected", clog.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.healthy.Store(true)
			c.logger.Info("nats reconnected", clog.String("server", nc.ConnectedUrl()))
		}),
	}
	switch {
	case c.cfg.Token != "":
		opts = append(opts, nats.Token(c.cfg.Token))
	case c.cfg.Username != "":
		opts = append(opts, nats.UserInfo(c.cfg.Username, c.cfg.Password))
	}
	return opts
}

func (c *natsConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.logger.Info("nats connection closed")
	return nil
}

func (c *natsConnector) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "nats connector[%s]: %v", c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *natsConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *natsConnector) Name() string { return "nats:" + c.cfg.Name }

func (c *natsConnector) GetClient() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}
