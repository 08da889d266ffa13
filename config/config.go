package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"orbitfire/utils"
)

// Config はサーバーとボットが共有する実行時設定です。
type Config struct {
	Addr  string
	Port  string
	Codec string

	SweepInterval time.Duration
	ShotLifetime  time.Duration
	HitRadius     float64

	PingInterval time.Duration
	IdleTimeout  time.Duration

	LogLevel slog.Level

	BotCount int
	TickRate int
}

var ErrInvalidConfig = errors.New("invalid config")

// Load は .env を（存在すれば）読み込んだ後、環境変数から Config を組み立てます。
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Addr:  utils.GetEnvDefault("ADDR", "localhost"),
		Port:  utils.GetEnvDefault("PORT", "9090"),
		Codec: strings.ToLower(utils.GetEnvDefault("CODEC", "json")),
	}

	var err error
	if cfg.SweepInterval, err = utils.GetEnvDuration("SWEEP_INTERVAL", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShotLifetime, err = utils.GetEnvDuration("SHOT_LIFETIME", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HitRadius, err = utils.GetEnvFloat("HIT_RADIUS", 1); err != nil {
		return Config{}, err
	}
	if cfg.PingInterval, err = utils.GetEnvDuration("PING_INTERVAL", 25*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = utils.GetEnvDuration("IDLE_TIMEOUT", 0); err != nil {
		return Config{}, err
	}
	if cfg.BotCount, err = utils.GetEnvInt("BOT_COUNT", 3); err != nil {
		return Config{}, err
	}
	if cfg.TickRate, err = utils.GetEnvInt("TICK_RATE", 60); err != nil {
		return Config{}, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(utils.GetEnvDefault("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("%w: CODEC must be json or msgpack, got %q", ErrInvalidConfig, c.Codec)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: SWEEP_INTERVAL must be positive", ErrInvalidConfig)
	}
	if c.ShotLifetime <= 0 {
		return fmt.Errorf("%w: SHOT_LIFETIME must be positive", ErrInvalidConfig)
	}
	if c.HitRadius <= 0 {
		return fmt.Errorf("%w: HIT_RADIUS must be positive", ErrInvalidConfig)
	}
	if c.IdleTimeout > 0 && c.PingInterval > 0 && c.IdleTimeout <= c.PingInterval {
		return fmt.Errorf("%w: IDLE_TIMEOUT must exceed PING_INTERVAL", ErrInvalidConfig)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("%w: TICK_RATE must be positive", ErrInvalidConfig)
	}
	if c.BotCount < 0 {
		return fmt.Errorf("%w: BOT_COUNT must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ListenAddr は "addr:port" を返します。
func (c Config) ListenAddr() string {
	return c.Addr + ":" + c.Port
}
