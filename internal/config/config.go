package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`

	// RingTimeout is how long a call may stay unanswered before the sweeper
	// removes it; SweepSchedule is the cron schedule of the sweeper.
	RingTimeout   time.Duration `mapstructure:"ring_timeout"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`

	HistoryDB string `mapstructure:"history_db"`

	SignalRateLimit    int           `mapstructure:"signal_rate_limit"`
	SignalRateInterval time.Duration `mapstructure:"signal_rate_interval"`
}

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	Name           string        `mapstructure:"name"`
	Bot            bool          `mapstructure:"bot"`
	AutoAccept     bool          `mapstructure:"auto_accept"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
}

func newViper(prefix string) (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", prefix, env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	return v, fileName
}

func read(v *viper.Viper, fileName string) {
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("sweep_schedule", "@every 15s")
	v.SetDefault("history_db", "voicesync.db")
	v.SetDefault("signal_rate_limit", 5)
	v.SetDefault("signal_rate_interval", "10s")
}

func Load() (*Config, error) {
	v, fileName := newViper("config")
	setServerDefaults(v)
	read(v, fileName)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Static: %s\n", cfg.Mode, cfg.Port, cfg.StaticPath)
	return &cfg, nil
}

// Defaults returns the server configuration without reading any file.
func Defaults() *Config {
	v := viper.New()
	setServerDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadClient reads config/client.<CONFIG_ENV>.yaml. VOICESYNC_* environment
// variables override file values.
func LoadClient() (*ClientConfig, error) {
	v, fileName := newViper("client")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("name", "bot")
	v.SetDefault("bot", true)
	v.SetDefault("auto_accept", true)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix("voicesync")
	v.AutomaticEnv()
	read(v, fileName)

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return &cfg, nil
}
