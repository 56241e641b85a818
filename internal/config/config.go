package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	defaultTokenTTLMinutes = 480
	defaultCacheTTLSeconds = 15
	defaultAllowOversell   = true
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	AllowOversell            bool
	AnalyticsCacheTTLSeconds int
	AnalyticsTimezone        string
	LogLevel                 string
	LogFormat                string
}

// Load reads configuration from the environment. If CONFIG_FILE is set its
// values are used underneath the environment, and a file that cannot be read
// is an error. Values that do not parse fall back to their defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ANALYTICS_TIMEZONE", "UTC")
	v.AutomaticEnv()

	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read CONFIG_FILE %q: %w", file, err)
		}
	}

	tokenTTL := intOr(v, "ACCESS_TOKEN_TTL_MINUTES", defaultTokenTTLMinutes)
	if tokenTTL < 1 {
		tokenTTL = defaultTokenTTLMinutes
	}
	cacheTTL := intOr(v, "ANALYTICS_CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if cacheTTL < 0 {
		cacheTTL = defaultCacheTTLSeconds
	}
	redisDB := intOr(v, "REDIS_DB", 0)
	if redisDB < 0 {
		redisDB = 0
	}

	return Config{
		Port:                     v.GetString("PORT"),
		AllowedOrigin:            v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:              v.GetString("DATABASE_URL"),
		RedisAddr:                v.GetString("REDIS_ADDR"),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		AuthSecret:               strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:    tokenTTL,
		AllowOversell:            boolOr(v, "ALLOW_OVERSELL", defaultAllowOversell),
		AnalyticsCacheTTLSeconds: cacheTTL,
		AnalyticsTimezone:        v.GetString("ANALYTICS_TIMEZONE"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFormat:                v.GetString("LOG_FORMAT"),
	}, nil
}

func intOr(v *viper.Viper, key string, fallback int) int {
	if !v.IsSet(key) {
		return fallback
	}
	n, err := cast.ToIntE(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return fallback
	}
	return n
}

func boolOr(v *viper.Viper, key string, fallback bool) bool {
	if !v.IsSet(key) {
		return fallback
	}
	b, err := cast.ToBoolE(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return fallback
	}
	return b
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AnalyticsLocation() (*time.Location, error) {
	if strings.TrimSpace(c.AnalyticsTimezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.AnalyticsTimezone)
}
