package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	defaultAppName        = "CarbonMax"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultMarketPrice    = "800"
	defaultNearbyRadiusKm = 50.0
	defaultEventsChannel  = "carbonmax:events"
	devJWTSecret          = "dev-access-secret-change-me"
	devRefreshSecret      = "dev-refresh-secret-change-me"
	idemTTLSecondsEnvVar  = "IDEMPOTENCY_TTL_SECONDS"
	shutdownSecondsEnvVar = "SHUTDOWN_TIMEOUT_SECONDS"
)

// Config captures application runtime configuration loaded from the environment.
type Config struct {
	AppName                string
	AppEnv                 string
	Port                   string
	LogLevel               string
	DatabaseURL            string
	RedisURL               string
	RunMigrations          bool
	ShutdownPeriod         time.Duration
	IdempotencyTTL         time.Duration
	JWTSecret              string
	RefreshSecret          string
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	LoginAttemptsPerMinute int
	MarketPrice            decimal.Decimal
	NearbyRadiusKm         float64
	EventsChannel          string
	AdminEmail             string
	AdminPassword          string
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay.String())
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL.String())
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("REFRESH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("LOGIN_ATTEMPTS_PER_MINUTE", 5)
	v.SetDefault("MARKET_PRICE", defaultMarketPrice)
	v.SetDefault("NEARBY_RADIUS_KM", defaultNearbyRadiusKm)
	v.SetDefault("EVENTS_CHANNEL", defaultEventsChannel)
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.AutomaticEnv()

	cfg := Config{
		AppName:                v.GetString("APP_NAME"),
		AppEnv:                 strings.ToLower(v.GetString("APP_ENV")),
		Port:                   v.GetString("PORT"),
		LogLevel:               strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		RedisURL:               v.GetString("REDIS_URL"),
		RunMigrations:          v.GetBool("RUN_MIGRATIONS"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		RefreshSecret:          v.GetString("REFRESH_SECRET"),
		LoginAttemptsPerMinute: v.GetInt("LOGIN_ATTEMPTS_PER_MINUTE"),
		NearbyRadiusKm:         v.GetFloat64("NEARBY_RADIUS_KM"),
		EventsChannel:          v.GetString("EVENTS_CHANNEL"),
		AdminEmail:             v.GetString("ADMIN_EMAIL"),
		AdminPassword:          v.GetString("ADMIN_PASSWORD"),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration(v, "SHUTDOWN_TIMEOUT", shutdownSecondsEnvVar); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration(v, "IDEMPOTENCY_TTL", idemTTLSecondsEnvVar); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = duration(v, "ACCESS_TOKEN_TTL", ""); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = duration(v, "REFRESH_TOKEN_TTL", ""); err != nil {
		return Config{}, err
	}

	cfg.MarketPrice, err = decimal.NewFromString(v.GetString("MARKET_PRICE"))
	if err != nil || !cfg.MarketPrice.IsPositive() {
		return Config{}, fmt.Errorf("invalid MARKET_PRICE %q: must be a positive number", v.GetString("MARKET_PRICE"))
	}
	if cfg.NearbyRadiusKm <= 0 {
		return Config{}, fmt.Errorf("invalid NEARBY_RADIUS_KM: must be positive")
	}

	if cfg.IsDevelopment() {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devJWTSecret
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devRefreshSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
	}
	return cfg, nil
}

// duration reads key as a Go duration; secondsKey, when set in the environment, takes precedence as whole seconds.
func duration(v *viper.Viper, key, secondsKey string) (time.Duration, error) {
	if secondsKey != "" && v.IsSet(secondsKey) {
		seconds := v.GetInt(secondsKey)
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s: must be a positive integer", secondsKey)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// IsDevelopment reports whether the service runs in a local development or test environment.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev" || c.AppEnv == "test"
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
