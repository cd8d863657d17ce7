package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TenantID         string `mapstructure:"TENANT_ID"`
	AdminChatIDsRaw  string `mapstructure:"ADMIN_CHAT_IDS"`
	DB_URL           string `mapstructure:"DB_URL"`
	Migrate          bool   `mapstructure:"MIGRATE"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`

	SettlementBaseURL string        `mapstructure:"SETTLEMENT_BASE_URL"`
	SettlementTimeout time.Duration `mapstructure:"SETTLEMENT_TIMEOUT"`

	RedisURL string        `mapstructure:"REDIS_URL"`
	StateTTL time.Duration `mapstructure:"STATE_TTL"`

	AMQPURL        string `mapstructure:"AMQP_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`
	MetricsAddr    string `mapstructure:"METRICS_ADDR"`

	BTCXPub    string `mapstructure:"BTC_XPUB"`
	BTCNetwork string `mapstructure:"BTC_NETWORK"`

	ReferralMaturity     time.Duration `mapstructure:"REFERRAL_MATURITY"`
	AutoSettleReferrals  bool          `mapstructure:"AUTO_SETTLE_REFERRALS"`
	ConfigReloadInterval time.Duration `mapstructure:"CONFIG_RELOAD_INTERVAL"`
	// RateFeedInterval > 0 keeps the BTC exchange rate synced with the market.
	RateFeedInterval time.Duration `mapstructure:"RATE_FEED_INTERVAL"`

	AdminChatIDs []int64 `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TENANT_ID", "default")
	v.SetDefault("MIGRATE", true)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("SETTLEMENT_TIMEOUT", "15s")
	v.SetDefault("STATE_TTL", "24h")
	v.SetDefault("EVENTS_EXCHANGE", "cashier_events")
	v.SetDefault("BTC_NETWORK", "mainnet")
	v.SetDefault("REFERRAL_MATURITY", "240h")
	v.SetDefault("AUTO_SETTLE_REFERRALS", true)
	v.SetDefault("CONFIG_RELOAD_INTERVAL", "30s")
	v.SetDefault("RATE_FEED_INTERVAL", "0s")
}

// LoadConfig reads the .env file at path (if present) and the environment.
func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("ошибка получения абсолютного пути: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(filepath.Dir(absPath))
	v.SetConfigName(filepath.Base(absPath))
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "DB_URL", "ADMIN_CHAT_IDS", "SETTLEMENT_BASE_URL",
		"REDIS_URL", "AMQP_URL", "METRICS_ADDR", "BTC_XPUB",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("ошибка чтения конфигурации: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("ошибка преобразования конфига: %w", err)
	}

	config.AdminChatIDs, err = parseChatIDs(config.AdminChatIDsRaw)
	if err != nil {
		return config, err
	}

	return config, nil
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_CHAT_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate checks the settings the bot cannot start without.
func (c Config) Validate() error {
	if c.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if c.DB_URL == "" {
		return errors.New("DB_URL is required")
	}
	if c.SettlementBaseURL == "" {
		return errors.New("SETTLEMENT_BASE_URL is required")
	}
	return nil
}
