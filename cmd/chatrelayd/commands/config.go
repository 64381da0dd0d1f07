package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/chatrelay"
	"github.com/xraph/chatrelay/extension"
)

// envPrefix prefixes every environment override, e.g. CHATRELAY_DELIVERY_URL.
const envPrefix = "CHATRELAY"

// Config is the daemon configuration as read from file and environment.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Pending   PendingConfig   `mapstructure:"pending"`
	Store     StoreConfig     `mapstructure:"store"`
	Session   SessionConfig   `mapstructure:"session"`
	Log       LogConfig       `mapstructure:"log"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type DeliveryConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Secret  string        `mapstructure:"secret"`
	OkCode  string        `mapstructure:"okCode"`
}

type PendingConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	Max           int           `mapstructure:"max"`
}

type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// URL renders the connection settings as a redis:// URL.
func (r RedisConfig) URL() string {
	u := url.URL{Scheme: "redis", Host: r.Addr, Path: "/" + strconv.Itoa(r.DB)}
	if r.Password != "" {
		u.User = url.UserPassword("", r.Password)
	}
	return u.String()
}

type SessionConfig struct {
	RateLimit  int   `mapstructure:"rateLimit"`
	SendBuffer int   `mapstructure:"sendBuffer"`
	ReadLimit  int64 `mapstructure:"readLimit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SimulatorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	CallbackURL string        `mapstructure:"callbackURL"`
	Delay       time.Duration `mapstructure:"delay"`
	Code        string        `mapstructure:"code"`
}

// LoadConfig reads configuration from path (optional) and the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chatrelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := chatrelay.DefaultConfig()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdownTimeout", d.ShutdownTimeout)

	v.SetDefault("delivery.url", "")
	v.SetDefault("delivery.timeout", d.RequestTimeout)
	v.SetDefault("delivery.secret", "")
	v.SetDefault("delivery.okCode", d.OkCode)

	v.SetDefault("pending.timeout", d.ConfirmationTimeout)
	v.SetDefault("pending.sweepInterval", d.SweepInterval)
	v.SetDefault("pending.max", d.MaxPending)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("session.rateLimit", 0)
	v.SetDefault("session.sendBuffer", d.SendBuffer)
	v.SetDefault("session.readLimit", d.ReadLimit)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.callbackURL", "")
	v.SetDefault("simulator.delay", time.Second)
	v.SetDefault("simulator.code", d.OkCode)
}

// RelayConfig maps the daemon sections onto the relay configuration.
func (c *Config) RelayConfig() chatrelay.Config {
	return chatrelay.Config{
		DeliveryURL:         c.Delivery.URL,
		RequestTimeout:      c.Delivery.Timeout,
		SigningSecret:       c.Delivery.Secret,
		OkCode:              c.Delivery.OkCode,
		ConfirmationTimeout: c.Pending.Timeout,
		SweepInterval:       c.Pending.SweepInterval,
		MaxPending:          c.Pending.Max,
		MessageRateLimit:    c.Session.RateLimit,
		SendBuffer:          c.Session.SendBuffer,
		ReadLimit:           c.Session.ReadLimit,
		ShutdownTimeout:     c.Server.ShutdownTimeout,
	}
}

// ToRelayOptions converts the configuration into chatrelay.Option values
// the same way the Forge extension does. The store, logger and simulator
// are wired by the caller.
func (c *Config) ToRelayOptions() []chatrelay.Option {
	return extension.Config{Config: c.RelayConfig()}.ToRelayOptions()
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Log.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
}
