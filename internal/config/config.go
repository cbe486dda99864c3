package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type AppCfg struct {
	Env          string        `mapstructure:"env"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type JWTCfg struct {
	Secret string `mapstructure:"secret"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoCfg struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type KafkaCfg struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPresence string   `mapstructure:"topic_presence"`
}

type Config struct {
	App   AppCfg   `mapstructure:"app"`
	JWT   JWTCfg   `mapstructure:"jwt"`
	Redis RedisCfg `mapstructure:"redis"`
	Mongo MongoCfg `mapstructure:"mongo"`
	Kafka KafkaCfg `mapstructure:"kafka"`
}

// DevMode reports whether development conveniences (code echo in responses)
// are enabled.
func (c *Config) DevMode() bool { return c.App.Env == "development" }

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 4000)
	v.SetDefault("app.read_timeout", "10s")
	v.SetDefault("app.write_timeout", "10s")
	v.SetDefault("app.idle_timeout", "60s")
	v.SetDefault("mongo.collection", "users")
	v.SetDefault("kafka.topic_presence", "presence.events")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return &c, nil
}
