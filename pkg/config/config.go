package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Database   struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Issuer struct {
		Addr        string        `mapstructure:"ADDR"`
		KeyCacheTTL time.Duration `mapstructure:"KEY_CACHE_TTL"`
	} `mapstructure:"ISSUER"`
	Payment struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PAYMENT"`
	Confirmation struct {
		Addr       string `mapstructure:"ADDR"`
		AdsEnabled bool   `mapstructure:"ADS_ENABLED"`
	} `mapstructure:"CONFIRMATION"`
	Contribution struct {
		MaxRetries  int           `mapstructure:"MAX_RETRIES"`
		BaseDelay   time.Duration `mapstructure:"BASE_DELAY"`
		MaxDelay    time.Duration `mapstructure:"MAX_DELAY"`
		Concurrency int           `mapstructure:"CONCURRENCY"`
	} `mapstructure:"CONTRIBUTION"`
	SnowflakeNode int64 `mapstructure:"SNOWFLAKE_NODE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Contribution.MaxRetries == 0 {
		cfg.Contribution.MaxRetries = 10
	}
	if cfg.Contribution.BaseDelay == 0 {
		cfg.Contribution.BaseDelay = 15 * time.Second
	}
	if cfg.Contribution.MaxDelay == 0 {
		cfg.Contribution.MaxDelay = time.Hour
	}
	if cfg.Contribution.Concurrency == 0 {
		cfg.Contribution.Concurrency = 4
	}
	if cfg.Issuer.KeyCacheTTL == 0 {
		cfg.Issuer.KeyCacheTTL = 10 * time.Minute
	}
	if cfg.SnowflakeNode == 0 {
		cfg.SnowflakeNode = 1
	}
}
