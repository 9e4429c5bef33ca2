package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type MomoProvider struct {
	BaseURL string `yaml:"base_url"`
	Secret  string `yaml:"secret"`
}

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Providers struct {
		Card struct {
			SecretKey     string `yaml:"secret_key"`
			WebhookSecret string `yaml:"webhook_secret"`
		} `yaml:"card"`
		OrangeMoney MomoProvider `yaml:"orange_money"`
		MTNMoMo     MomoProvider `yaml:"mtn_momo"`
	} `yaml:"providers"`
	Pricing struct {
		BaseCurrency      string  `yaml:"base_currency"`
		AlternateCurrency string  `yaml:"alternate_currency"`
		ExchangeRate      float64 `yaml:"exchange_rate"`
	} `yaml:"pricing"`
	Events struct {
		NATSURL string `yaml:"nats_url"`
	} `yaml:"events"`
	Worker struct {
		IntervalSeconds int64 `yaml:"interval_seconds"`
		MinAgeSeconds   int64 `yaml:"min_age_seconds"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Pricing.AlternateCurrency != "" && cfg.Pricing.ExchangeRate <= 0 {
		return nil, errors.New("pricing.exchange_rate must be positive when an alternate currency is set")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Pricing.BaseCurrency == "" {
		cfg.Pricing.BaseCurrency = "usd"
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 60
	}
	if cfg.Worker.MinAgeSeconds <= 0 {
		cfg.Worker.MinAgeSeconds = 120
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("CARD_SECRET_KEY"); v != "" {
		cfg.Providers.Card.SecretKey = v
	}
	if v := os.Getenv("CARD_WEBHOOK_SECRET"); v != "" {
		cfg.Providers.Card.WebhookSecret = v
	}
	if v := os.Getenv("ORANGE_MONEY_BASE_URL"); v != "" {
		cfg.Providers.OrangeMoney.BaseURL = v
	}
	if v := os.Getenv("ORANGE_MONEY_SECRET"); v != "" {
		cfg.Providers.OrangeMoney.Secret = v
	}
	if v := os.Getenv("MTN_MOMO_BASE_URL"); v != "" {
		cfg.Providers.MTNMoMo.BaseURL = v
	}
	if v := os.Getenv("MTN_MOMO_SECRET"); v != "" {
		cfg.Providers.MTNMoMo.Secret = v
	}
	if v := os.Getenv("BASE_CURRENCY"); v != "" {
		cfg.Pricing.BaseCurrency = v
	}
	if v := os.Getenv("ALTERNATE_CURRENCY"); v != "" {
		cfg.Pricing.AlternateCurrency = v
	}
	if v := os.Getenv("EXCHANGE_RATE"); v != "" {
		cfg.Pricing.ExchangeRate = atofOr(cfg.Pricing.ExchangeRate, v)
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_MIN_AGE_SECONDS"); v != "" {
		cfg.Worker.MinAgeSeconds = atoi64Or(cfg.Worker.MinAgeSeconds, v)
	}
}

func atofOr(fallback float64, v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
