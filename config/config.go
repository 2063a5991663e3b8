package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Storage. STORE_DRIVER is "mongo" or "memory".
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	StoreDriver  string `mapstructure:"STORE_DRIVER"`
	// Optional JSON array of providers saved into the provider directory at startup.
	ProviderSeedFile string `mapstructure:"PROVIDER_SEED_FILE"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Payments. PAYMENT_GATEWAY is "stripe" or "mock".
	PaymentGateway      string `mapstructure:"PAYMENT_GATEWAY"`
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	CheckoutReturnURL   string `mapstructure:"CHECKOUT_RETURN_URL"`
	DefaultCurrency     string `mapstructure:"DEFAULT_CURRENCY"`

	GatewayTimeout   time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	PendingHoldTTL   time.Duration `mapstructure:"PENDING_HOLD_TTL"`
	PaymentPollDelay time.Duration `mapstructure:"PAYMENT_POLL_DELAY"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`

	// Push notifications.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	NotificationsEnabled    bool   `mapstructure:"NOTIFICATIONS_ENABLED"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "escrowbook")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("PROVIDER_SEED_FILE", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_QUEUE_DB", 1)
	v.SetDefault("PAYMENT_GATEWAY", "stripe")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("CHECKOUT_RETURN_URL", "http://localhost:5173/booking/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("DEFAULT_CURRENCY", "USD")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("PENDING_HOLD_TTL", "30m")
	v.SetDefault("PAYMENT_POLL_DELAY", "5m")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	v.SetDefault("NOTIFICATIONS_ENABLED", false)
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

func UsesMemoryStore() bool {
	return AppConfig.StoreDriver == "memory"
}
