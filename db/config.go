package db

import (
	"fmt"

	"github.com/ceyewan/dealflow/xerrors"
)

// Config DB 组件配置
type Config struct {
	// Tracing 为每条 SQL 创建 OpenTelemetry span
	Tracing bool `mapstructure:"tracing"`
	// TraceSQL 在 span 中记录带参数的 SQL，默认只记录语句模板
	TraceSQL bool `mapstructure:"trace_sql"`
	// Sharding 分表规则，为空表示不分表
	Sharding []ShardingRule `mapstructure:"sharding"`
}

// ShardingRule 分表规则
//
// 启用后，对这些表的每条查询都必须带上分片键。
type ShardingRule struct {
	ShardingKey    string   `mapstructure:"sharding_key"`
	NumberOfShards uint     `mapstructure:"number_of_shards"`
	Tables         []string `mapstructure:"tables"`
}

func (c *Config) validate() error {
	for i, rule := range c.Sharding {
		field := fmt.Sprintf("db.sharding[%d]", i)
		if rule.ShardingKey == "" {
			return xerrors.NewConfiguration(field+".sharding_key", "is required")
		}
		if rule.NumberOfShards == 0 {
			return xerrors.NewConfiguration(field+".number_of_shards", "must be > 0")
		}
		if len(rule.Tables) == 0 {
			return xerrors.NewConfiguration(field+".tables", "at least one table is required")
		}
		for _, t := range rule.Tables {
			if t == "" {
				return xerrors.NewConfiguration(field+".tables", "table name cannot be empty")
			}
		}
	}
	return nil
}
