package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

/* Config holds process-level settings loaded once at startup.
 * Values come from the environment, optionally seeded by a .env file.
 */

type Config struct {
	Port        string `mapstructure:"PORT"`
	Environment string `mapstructure:"ENVIRONMENT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// LimitsFile points to the rate limit tables (limits.yaml).
	// Empty means compiled-in defaults.
	LimitsFile string `mapstructure:"LIMITS_FILE"`

	// Per-provider inbound webhook signing secrets.
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	TwilioAuthToken     string `mapstructure:"TWILIO_AUTH_TOKEN"`
	RetellWebhookSecret string `mapstructure:"RETELL_WEBHOOK_SECRET"`

	// SkipWebhookVerification disables inbound signature checks.
	// Refused when Environment is "production".
	SkipWebhookVerification bool `mapstructure:"SKIP_WEBHOOK_VERIFICATION"`

	// Retry worker tuning.
	RetryIntervalSeconds int `mapstructure:"RETRY_INTERVAL_SECONDS"`
	RetryLeaseSeconds    int `mapstructure:"RETRY_LEASE_SECONDS"`
	RetryMaxAttempts     int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryBaseSeconds     int `mapstructure:"RETRY_BASE_SECONDS"`

	// DeliveryTimeoutSeconds bounds each outbound webhook POST.
	DeliveryTimeoutSeconds int `mapstructure:"DELIVERY_TIMEOUT_SECONDS"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RETRY_INTERVAL_SECONDS", 30)
	viper.SetDefault("RETRY_LEASE_SECONDS", 60)
	viper.SetDefault("RETRY_MAX_ATTEMPTS", 8)
	viper.SetDefault("RETRY_BASE_SECONDS", 30)
	viper.SetDefault("DELIVERY_TIMEOUT_SECONDS", 10)

	// The .env file is optional; the environment alone is enough.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// IsProduction reports whether the deployment environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
