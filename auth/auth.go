// Package auth 为 dealflow 的管理接口提供 HS256 JWT 认证。
//
//	authn, _ := auth.New(&auth.Config{SecretKey: secret}, auth.WithLogger(logger))
//	token, _ := authn.Issue(ctx, "ops@example.com", auth.RoleAdmin)
//
//	admin := r.Group("/v1/breakers", authn.GinMiddleware(), auth.RequireRoles(auth.RoleAdmin))
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/metrics"
	"github.com/ceyewan/dealflow/xerrors"
)

// RoleAdmin 可以重置熔断器等运维操作
const RoleAdmin = "dealflow:admin"

// MetricTokensValidated Token 校验计数，标签 status
const MetricTokensValidated = "dealflow_auth_tokens_validated_total"

// Authenticator JWT 签发与校验，可并发使用
type Authenticator struct {
	cfg       *Config
	opts      *options
	validated metrics.Counter
	parser    *jwt.Parser
}

// New 校验配置并创建 Authenticator
func New(cfg *Config, opts ...Option) (*Authenticator, error) {
	if cfg == nil {
		return nil, xerrors.NewConfiguration("auth", "config is required")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts...)

	counter, err := o.meter.Counter(MetricTokensValidated, "Number of validated tokens by status")
	if err != nil {
		return nil, xerrors.Wrap(err, "create auth counter")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(o.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:       cfg,
		opts:      o,
		validated: counter,
		parser:    jwt.NewParser(parserOpts...),
	}, nil
}

// Issue 为 subject 签发 Token，有效期为 TokenTTL
func (a *Authenticator) Issue(ctx context.Context, subject string, roles ...string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", xerrors.NewValidation("subject", "subject is required")
	}
	now := a.opts.clock.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
		},
		Roles: roles,
	}
	if a.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.SecretKey))
	if err != nil {
		return "", xerrors.Wrap(err, "sign token")
	}
	a.opts.logger.InfoContext(ctx, "token issued", clog.String("subject", subject), clog.Any("roles", roles))
	return signed, nil
}

// Validate 校验签名、过期时间以及 issuer/audience
func (a *Authenticator) Validate(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.SecretKey), nil
	})
	if err != nil {
		status := "invalid"
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			status, err = "expired", ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			status, err = "invalid_signature", ErrInvalidSignature
		default:
			err = xerrors.Wrap(ErrInvalidToken, err.Error())
		}
		a.validated.Inc(ctx, metrics.L("status", status))
		a.opts.logger.DebugContext(ctx, "token rejected", clog.Error(err))
		return nil, err
	}
	a.validated.Inc(ctx, metrics.L("status", "success"))
	return claims, nil
}

// extractToken 读取 Authorization: Bearer <token>
func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
