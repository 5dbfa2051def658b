package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const DefaultBindAddr = "127.0.0.1:8080"

type Config struct {
	BindAddr string `env:"APP_BIND_ADDR" validate:"omitempty,hostname_port"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"5s"   validate:"min=10ms"`
	ClientTimeout     time.Duration `env:"CLIENT_TIMEOUT"     envDefault:"10s"  validate:"gtfield=HeartbeatInterval"`
	WriteWait         time.Duration `env:"WRITE_WAIT"         envDefault:"10s"  validate:"min=10ms"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE"   envDefault:"256"  validate:"min=1,max=65536"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE"   envDefault:"4096" validate:"min=128"`

	RedisTapAddr    string `env:"REDIS_TAP_ADDR"    validate:"omitempty,hostname_port"`
	RedisTapChannel string `env:"REDIS_TAP_CHANNEL" envDefault:"relayhub:events" validate:"required"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}

	if cfg.BindAddr == "" {
		zap.L().Warn("APP_BIND_ADDR not defined, using default", zap.String("addr", DefaultBindAddr))
		cfg.BindAddr = DefaultBindAddr
	}
	return cfg, nil
}
