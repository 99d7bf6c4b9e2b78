package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		TTL      string `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	Postgres struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"postgres"`
	Mongo struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongo"`
	Event struct {
		ID       string `mapstructure:"id"`
		Name     string `mapstructure:"name"`
		Template string `mapstructure:"template"`
		TTL      string `mapstructure:"ttl"`
		QRWindow string `mapstructure:"qr_window"`
	} `mapstructure:"event"`
}

// Load reads YAML config from path, then lets BINGO_* environment variables
// override any key (BINGO_REDIS_ADDR for redis.addr). A missing file is not an
// error; defaults and environment still apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return cfg, err
			}
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("postgres.url", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "bingo")
	v.SetDefault("event.id", "demo")
	v.SetDefault("event.name", "")
	v.SetDefault("event.template", "tech-meetup")
	v.SetDefault("event.ttl", "10m")
	v.SetDefault("event.qr_window", "5m")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
