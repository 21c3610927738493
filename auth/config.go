package auth

import (
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// Config 认证配置
type Config struct {
	// SecretKey HS256 密钥，至少 32 字符
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
	// TokenTTL 签发 Token 的有效期 (默认: 15m)
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

func (c *Config) setDefaults() {
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
}

func (c *Config) validate() error {
	if len(c.SecretKey) < 32 {
		return xerrors.NewConfiguration("auth.secret_key", "secret key must be at least 32 characters")
	}
	return nil
}
