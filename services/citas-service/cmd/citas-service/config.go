package main

import (
	"errors"
	"time"

	"github.com/eecmx/citas/libs/config"
	"github.com/eecmx/citas/libs/httpx"
)

type serviceConfig struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"citas-service"`
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	MigrateOnStart bool `envconfig:"MIGRATE_ON_START" default:"true"`

	ReferenceTimezone string `envconfig:"REFERENCE_TIMEZONE" default:"America/Mexico_City"`

	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTLMinutes int           `envconfig:"JWT_TTL_MINUTES" default:"480"`
	JWKSURL       string        `envconfig:"JWKS_URL"`
	JWKSCacheTTL  time.Duration `envconfig:"JWKS_CACHE_TTL" default:"5m"`
	SecureCookie  bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`

	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	RedisAddr          string   `envconfig:"REDIS_ADDR"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RateLimitFailOpen  bool     `envconfig:"RATE_LIMIT_FAIL_OPEN" default:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// Addresses or CIDRs of load balancers whose X-Forwarded-For is believed.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
	proxies        httpx.TrustedProxies

	BodyLimitBytes int64         `envconfig:"HTTP_BODY_LIMIT_BYTES" default:"65536"`
	RequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"15s"`
}

func loadServiceConfig() (serviceConfig, error) {
	var cfg serviceConfig
	if err := config.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := config.ValidatePort(cfg.Port); err != nil {
		return cfg, errors.New("PORT " + err.Error())
	}
	if cfg.JWTTTLMinutes <= 0 {
		return cfg, errors.New("JWT_TTL_MINUTES must be positive")
	}
	proxies, err := httpx.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return cfg, errors.New("TRUSTED_PROXIES " + err.Error())
	}
	cfg.proxies = proxies
	return cfg, nil
}
