package bootstrap

import (
	"time"

	"github.com/ceyewan/dealflow/auth"
	"github.com/ceyewan/dealflow/cache"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/db"
	"github.com/ceyewan/dealflow/dlock"
	"github.com/ceyewan/dealflow/idem"
	"github.com/ceyewan/dealflow/internal/server"
	"github.com/ceyewan/dealflow/metrics"
	"github.com/ceyewan/dealflow/mq"
	"github.com/ceyewan/dealflow/ratelimit"
	"github.com/ceyewan/dealflow/resilience"
	"github.com/ceyewan/dealflow/trace"
)

// AppConfig config.yaml 的完整结构
//
// Redis、NATS、Kafka、Auth 未配置时为 nil，对应能力退化为进程内实现或关闭。
type AppConfig struct {
	Log        clog.Config       `mapstructure:"log"`
	Metrics    metrics.Config    `mapstructure:"metrics"`
	Trace      trace.Config      `mapstructure:"trace"`
	Server     server.Config     `mapstructure:"server"`
	Resilience resilience.Config `mapstructure:"resilience"`
	Pipeline   PipelineConfig    `mapstructure:"pipeline"`

	Database connector.DatabaseConfig `mapstructure:"database"`
	DB       db.Config                `mapstructure:"db"`
	Redis    *connector.RedisConfig   `mapstructure:"redis"`
	NATS     *connector.NATSConfig    `mapstructure:"nats"`
	Kafka    *connector.KafkaConfig   `mapstructure:"kafka"`

	Cache     cache.Config     `mapstructure:"cache"`
	MQ        mq.Config        `mapstructure:"mq"`
	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	Idem      idem.Config      `mapstructure:"idem"`
	Lock      dlock.Config     `mapstructure:"lock"`
	Auth      *auth.Config     `mapstructure:"auth"`
}

// PipelineConfig 阶段迁移相关配置
type PipelineConfig struct {
	// Strict 拒绝后退的迁移
	Strict bool `mapstructure:"strict"`
	// NodeID 历史记录 ID 生成器的节点号，多实例部署时必须互不相同
	NodeID int64 `mapstructure:"node_id"`
	// SyncTimeout CRM 同步的单次尝试时限，0 使用 crm-stage-update 的策略
	SyncTimeout time.Duration `mapstructure:"sync_timeout"`
	// ROICacheTTL ROI 结果缓存时间 (默认: 24h)
	ROICacheTTL time.Duration `mapstructure:"roi_cache_ttl"`
}

// DefaultAppConfig 单机开发配置：SQLite 文件库、本地缓存、内存消息
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Log:        *clog.NewDevDefaultConfig("dealflow"),
		Metrics:    metrics.Config{Enabled: true, ServiceName: "dealflow", EnableRuntime: true},
		Trace:      *trace.DefaultConfig("dealflow"),
		Resilience: resilience.DefaultConfig(),
		Pipeline:   PipelineConfig{NodeID: 1},
		Database: connector.DatabaseConfig{
			Name:   "dealflow",
			Driver: connector.DriverSQLite,
			Path:   "dealflow.db",
		},
	}
}
