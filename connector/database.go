package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type databaseConnector struct {
	cfg     *DatabaseConfig
	opts    *options
	logger  clog.Logger
	healthy atomic.Bool

	mu sync.RWMutex
	db *gorm.DB
}

// NewDatabase 创建关系数据库连接器，Driver 决定使用 MySQL 还是 SQLite
func NewDatabase(cfg *DatabaseConfig, opts ...Option) (DatabaseConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid database config")
	}
	o := applyOptions(opts...)
	return &databaseConnector{
		cfg:    cfg,
		opts:   o,
		logger: o.logger.With(clog.String("connector", cfg.Driver), clog.String("name", cfg.Name)),
	}, nil
}

func (c *databaseConnector) dialector() gorm.Dialector {
	if c.cfg.Driver == DriverMySQL {
		return mysql.Open(c.cfg.mysqlDSN())
	}
	return sqlite.Open(c.cfg.Path)
}

func (c *databaseConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}
	c.logger.Info("connecting to database", clog.String("driver", c.cfg.Driver))

	gormCfg := &gorm.Config{
		Logger: newGormLogger(c.logger, c.cfg.SlowThreshold, c.cfg.LogSQL),
	}

	var db *gorm.DB
	err := dial(ctx, c.opts, c.logger, c.cfg.Dial, func(ctx context.Context) error {
		opened, err := gorm.Open(c.dialector(), gormCfg)
		if err != nil {
			return err
		}
		sqlDB, err := opened.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		db = opened
		return nil
	})
	if err != nil {
		c.logger.Error("database connection failed", clog.Error(err))
		return xerrors.Wrapf(err, "%s connector[%s]", c.cfg.Driver, c.cfg.Name)
	}

	sqlDB, _ := db.DB()
	maxOpen := c.cfg.MaxOpenConns
	// 每个 :memory: 连接都是独立的库，只能保留一个连接
	if c.cfg.Driver == DriverSQLite && c.cfg.Path == ":memory:" {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(c.cfg.MaxIdleConns, maxOpen))
	sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("connected to database", clog.String("driver", c.cfg.Driver))
	return nil
}

func (c *databaseConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close database", clog.Error(err))
		return err
	}
	c.logger.Info("database connection closed")
	return nil
}

func (c *databaseConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		return ErrNotConnected
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.cfg.Driver, c.cfg.Name, err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *databaseConnector) IsHealthy() bool { return c.healthy.Load() }

func (c *databaseConnector) Name() string { return c.cfg.Driver + ":" + c.cfg.Name }

func (c *databaseConnector) Driver() string { return c.cfg.Driver }

func (c *databaseConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
