package mq

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// 驱动类型
const (
	DriverMemory = "memory"
	DriverNATS   = "nats"
	DriverKafka  = "kafka"
)

// Config 消息客户端配置
type Config struct {
	// Driver memory | nats | kafka (默认: memory)
	Driver string `mapstructure:"driver"`
	// Buffer 内存驱动每个订阅的缓冲长度 (默认: 64)
	Buffer int `mapstructure:"buffer"`
	// PollBackoff Kafka 拉取出错后的等待 (默认: 1s)
	PollBackoff time.Duration `mapstructure:"poll_backoff"`
}

func (c *Config) validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.PollBackoff <= 0 {
		c.PollBackoff = time.Second
	}
	switch c.Driver {
	case DriverMemory, DriverNATS, DriverKafka:
		return nil
	default:
		return xerrors.NewConfiguration("mq.driver", fmt.Sprintf("unsupported driver %q", c.Driver))
	}
}
