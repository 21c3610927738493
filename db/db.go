// Package db 在数据库连接器之上提供 GORM 访问：事务、表迁移、OpenTelemetry 链路与可选分表。
//
// db 借用 connector.DatabaseConnector 的连接，不负责连接的生命周期：
//
//	conn, _ := connector.NewDatabase(&cfg.Database, connector.WithLogger(logger))
//	_ = conn.Connect(ctx)
//	defer conn.Close()
//
//	database, _ := db.New(conn, &db.Config{Tracing: true}, db.WithLogger(logger))
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Create(&record).Error
//	})
package db

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
	"gorm.io/sharding"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/xerrors"
)

// DB 数据库组件
type DB interface {
	// DB 返回绑定 ctx 的 *gorm.DB
	DB(ctx context.Context) *gorm.DB
	// Transaction 在事务中执行 fn，fn 返回错误时回滚
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error
	// AutoMigrate 创建或更新表结构
	AutoMigrate(ctx context.Context, models ...any) error
	// Driver 底层驱动名
	Driver() string
}

type database struct {
	client *gorm.DB
	driver string
	logger clog.Logger
}

// New 创建数据库组件；conn 必须已经 Connect
func New(conn connector.DatabaseConnector, cfg *Config, opts ...Option) (DB, error) {
	if conn == nil {
		return nil, xerrors.NewConfiguration("db", "database connector is nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid db config")
	}
	client := conn.GetClient()
	if client == nil {
		return nil, connector.ErrNotConnected
	}
	o := applyOptions(opts...)

	if cfg.Tracing {
		pluginOpts := []otelgorm.Option{otelgorm.WithDBName(conn.Name())}
		if o.tracer != nil {
			pluginOpts = append(pluginOpts, otelgorm.WithTracerProvider(o.tracer))
		}
		if !cfg.TraceSQL {
			pluginOpts = append(pluginOpts, otelgorm.WithoutQueryVariables())
		}
		if err := client.Use(otelgorm.NewPlugin(pluginOpts...)); err != nil {
			return nil, xerrors.Wrap(err, "register otelgorm plugin")
		}
	}

	for _, rule := range cfg.Sharding {
		tables := make([]any, len(rule.Tables))
		for i, t := range rule.Tables {
			tables[i] = t
		}
		middleware := sharding.Register(sharding.Config{
			ShardingKey:         rule.ShardingKey,
			NumberOfShards:      rule.NumberOfShards,
			PrimaryKeyGenerator: sharding.PKSnowflake,
		}, tables...)
		if err := client.Use(middleware); err != nil {
			return nil, xerrors.Wrapf(err, "register sharding for tables %v", rule.Tables)
		}
		o.logger.Info("sharding enabled",
			clog.String("key", rule.ShardingKey),
			clog.Int("shards", int(rule.NumberOfShards)),
			clog.Any("tables", rule.Tables))
	}

	return &database{
		client: client,
		driver: conn.Driver(),
		logger: o.logger,
	}, nil
}

func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func (d *database) AutoMigrate(ctx context.Context, models ...any) error {
	if err := d.client.WithContext(ctx).AutoMigrate(models...); err != nil {
		d.logger.ErrorContext(ctx, "auto migrate failed", clog.Error(err))
		return xerrors.Wrap(err, "auto migrate")
	}
	return nil
}

func (d *database) Driver() string { return d.driver }
