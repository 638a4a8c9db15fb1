package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"` // no ping/pong/data for this long marks the socket stale
	MaxFrameBytes    int           `mapstructure:"max_frame_bytes"`
}

// FeedConfig tunes the subscription lifecycle. Zero values fall back to the
// defaults registered in setDefaults.
type FeedConfig struct {
	Symbols      []string `mapstructure:"symbols"`       // symbols subscribed at startup, e.g. "BTCUSDT"
	Streams      []string `mapstructure:"streams"`       // stream kinds per symbol: "ticker", "trade", "kline_15m"
	AutoDiscover bool     `mapstructure:"auto_discover"` // subscribe every TRADING symbol quoted in QuoteAsset
	QuoteAsset   string   `mapstructure:"quote_asset"`

	Debounce       time.Duration `mapstructure:"debounce"`
	MinSendSpacing time.Duration `mapstructure:"min_send_spacing"`
	SendJitter     time.Duration `mapstructure:"send_jitter"`
	StabilizeDelay time.Duration `mapstructure:"stabilize_delay"`

	LivenessInterval      time.Duration `mapstructure:"liveness_interval"`
	ReconnectBase         time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax          time.Duration `mapstructure:"reconnect_max"`
	ReconnectJitter       time.Duration `mapstructure:"reconnect_jitter"`
	MaxReconnectAttempts  int           `mapstructure:"max_reconnect_attempts"`
	ForceReconnectSpacing time.Duration `mapstructure:"force_reconnect_spacing"`
	ForceReconnectDelay   time.Duration `mapstructure:"force_reconnect_delay"`

	ErrorThreshold  int           `mapstructure:"error_threshold"`
	ErrorWindow     time.Duration `mapstructure:"error_window"`
	UnsubscribeMode string        `mapstructure:"unsubscribe_mode"` // "reconnect" or "message"
	LatencySamples  int           `mapstructure:"latency_samples"`

	HealthLogInterval time.Duration `mapstructure:"health_log_interval"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	var paths []string
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		paths = append(paths, filepath.Join(pwd, "../../config"))
	} else {
		paths = append(paths, filepath.Join(filepath.Dir(ex), "../config"))
	}
	paths = append(paths, "./config")

	cfg, err := LoadFrom(paths...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from the first matching directory in paths.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	// Support environment variables with dot notation (e.g., BINANCE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://api.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.ws.url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("binance.ws.handshake_timeout", 10*time.Second)
	v.SetDefault("binance.ws.write_timeout", 5*time.Second)
	v.SetDefault("binance.ws.ping_timeout", 5*time.Minute)
	v.SetDefault("binance.ws.max_frame_bytes", 64*1024)

	v.SetDefault("feed.streams", []string{"ticker"})
	v.SetDefault("feed.quote_asset", "USDT")
	v.SetDefault("feed.debounce", 100*time.Millisecond)
	v.SetDefault("feed.min_send_spacing", 300*time.Millisecond)
	v.SetDefault("feed.send_jitter", 50*time.Millisecond)
	v.SetDefault("feed.stabilize_delay", 250*time.Millisecond)
	v.SetDefault("feed.liveness_interval", 15*time.Second)
	v.SetDefault("feed.reconnect_base", 2*time.Second)
	v.SetDefault("feed.reconnect_max", 30*time.Second)
	v.SetDefault("feed.reconnect_jitter", time.Second)
	v.SetDefault("feed.max_reconnect_attempts", 10)
	v.SetDefault("feed.force_reconnect_spacing", 5*time.Second)
	v.SetDefault("feed.force_reconnect_delay", 500*time.Millisecond)
	v.SetDefault("feed.error_threshold", 50)
	v.SetDefault("feed.error_window", time.Minute)
	v.SetDefault("feed.unsubscribe_mode", "reconnect")
	v.SetDefault("feed.latency_samples", 100)
	v.SetDefault("feed.health_log_interval", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")
}
