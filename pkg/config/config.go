package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerPort      string        `envconfig:"SERVER_PORT" default:"8080"`
	Environment     string        `envconfig:"ENVIRONMENT" default:"development"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	FirebaseProject    string `envconfig:"FIREBASE_PROJECT_ID"`
	FirebaseAPIKey     string `envconfig:"FIREBASE_API_KEY"`
	ServiceAccountPath string `envconfig:"FIREBASE_SERVICE_ACCOUNT_PATH"`
	ServiceAccountJSON string `envconfig:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	StorageBucket      string `envconfig:"STORAGE_BUCKET"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	// AuthDriver selects the identity provider: firebase, or local for
	// development without a Firebase project.
	AuthDriver      string `envconfig:"AUTH_DRIVER" default:"firebase"`
	LocalAuthSecret string `envconfig:"LOCAL_AUTH_SECRET" default:"unitrade-dev-secret"`

	// StoreDriver selects the listing/message store: firestore or memory.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"firestore"`

	Watermark WatermarkConfig
	Market    MarketConfig
}

// WatermarkConfig selects where per-device last-seen timestamps live.
type WatermarkConfig struct {
	Driver        string `envconfig:"WATERMARK_DRIVER" default:"memory"` // memory, badger, redis
	BadgerPath    string `envconfig:"WATERMARK_BADGER_PATH" default:"./data/watermarks"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// MarketConfig holds the marketplace rules that go beyond the baseline behavior.
type MarketConfig struct {
	AllowedEmailDomain      string  `envconfig:"ALLOWED_EMAIL_DOMAIN" default:"@s.kyushu-u.ac.jp"`
	PasswordMinEntropy      float64 `envconfig:"PASSWORD_MIN_ENTROPY" default:"0"`
	AllowSelfPurchase       bool    `envconfig:"ALLOW_SELF_PURCHASE" default:"true"`
	StrictListingValidation bool    `envconfig:"STRICT_LISTING_VALIDATION" default:"false"`
	MaxImageBytes           int64   `envconfig:"MAX_IMAGE_BYTES" default:"5242880"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.StoreDriver {
	case "firestore", "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.AuthDriver {
	case "firebase", "local":
	default:
		return nil, fmt.Errorf("unknown AUTH_DRIVER %q", cfg.AuthDriver)
	}

	switch cfg.Watermark.Driver {
	case "memory", "badger", "redis":
	default:
		return nil, fmt.Errorf("unknown WATERMARK_DRIVER %q", cfg.Watermark.Driver)
	}

	return &cfg, nil
}
