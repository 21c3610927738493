// Package connector 管理 dealflow 依赖的外部连接：Redis、NATS、Kafka 与关系数据库（MySQL、SQLite）。
//
// 连接器遵循"谁创建，谁释放"：NewXXX 只校验配置，Connect 才建立连接，
// 建立连接时按 Dial 参数重试；cache、mq、db 等组件只借用连接，不负责关闭。
//
//	conn, _ := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//		connector.WithLogger(logger))
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	client := conn.GetClient()
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"
)

// Connector 所有连接器的公共行为，方法均可并发调用
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error
	// Close 释放连接，幂等
	Close() error
	// HealthCheck 主动探测并更新健康状态
	HealthCheck(ctx context.Context) error
	// IsHealthy 最近一次探测的结果
	IsHealthy() bool
	// Name 连接器名称，用于日志与健康检查输出
	Name() string
}

// TypedConnector 提供类型化的底层客户端
type TypedConnector[T any] interface {
	Connector
	// GetClient Connect 之前或 Close 之后可能返回 nil
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// NATSConnector NATS 连接器
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}

// KafkaConnector Kafka 连接器（franz-go）
type KafkaConnector interface {
	TypedConnector[*kgo.Client]
	// Seeds broker 列表，消费者需要用它创建独立的客户端
	Seeds() []string
	// ClientID 客户端标识
	ClientID() string
}

// DatabaseConnector 基于 GORM 的关系数据库连接器
type DatabaseConnector interface {
	TypedConnector[*gorm.DB]
	// Driver 返回 "mysql" 或 "sqlite"
	Driver() string
}
