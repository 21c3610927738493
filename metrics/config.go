package metrics

// Config 指标系统配置
//
//	metrics:
//	  enabled: true
//	  service_name: "dealflow"
//	  version: "v0.1.0"
//	  port: 0          # 大于 0 时单独启动抓取端口
//	  path: "/metrics"
//	  enable_runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	Port        int    `mapstructure:"port"`
	Path        string `mapstructure:"path"`
	// EnableRuntime 采集 Go 运行时指标（goroutine、GC、内存）
	EnableRuntime bool `mapstructure:"enable_runtime"`
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "dealflow"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
