package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ServiceName    = "quote-service"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	APIKeys                 []APIKeyConfig            `mapstructure:"api_keys"`
	Port                    map[string]string         `mapstructure:"port"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Redis                   map[string]RedisConfig    `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
	QuoteGateway            QuoteGatewayConfig        `mapstructure:"quote_gateway"`
	QuoteViewer             QuoteViewerConfig         `mapstructure:"quote_viewer"`
}

type QuoteGatewayConfig struct {
	TickInterval            time.Duration     `mapstructure:"tick_interval"`
	RetrievalTimeout        time.Duration     `mapstructure:"retrieval_timeout"`
	CacheTTL                time.Duration     `mapstructure:"cache_ttl"`
	MaxConcurrentRetrievals int               `mapstructure:"max_concurrent_retrievals"`
	HeartbeatInterval       time.Duration     `mapstructure:"heartbeat_interval"`
	ClientTimeout           time.Duration     `mapstructure:"client_timeout"`
	WriteWait               time.Duration     `mapstructure:"write_wait"`
	SendBuffer              int               `mapstructure:"send_buffer"`
	ReadLimit               int64             `mapstructure:"read_limit"`
	HistorySize             int               `mapstructure:"history_size"`
	InitialTickers          []string          `mapstructure:"initial_tickers"`
	PersistTracked          bool              `mapstructure:"persist_tracked"`
	Source                  QuoteSourceConfig `mapstructure:"source"`
}

type QuoteSourceConfig struct {
	Driver         string             `mapstructure:"driver"` // rest | simulated
	BaseURL        string             `mapstructure:"base_url"`
	RequestTimeout time.Duration      `mapstructure:"request_timeout"`
	RateLimit      float64            `mapstructure:"rate_limit"` // requests per second
	Burst          int                `mapstructure:"burst"`
	SymbolMapping  map[string]string  `mapstructure:"symbol_mapping"`
	Breaker        BreakerConfig      `mapstructure:"breaker"`
	Simulated      map[string]float64 `mapstructure:"simulated"` // ticker -> starting price
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

type QuoteViewerConfig struct {
	URL                  string        `mapstructure:"url"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	BaseDelay            time.Duration `mapstructure:"base_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	BackoffFactor        float64       `mapstructure:"backoff_factor"`
	ManualReconnectDelay time.Duration `mapstructure:"manual_reconnect_delay"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
}

type APIKeyConfig struct {
	Name      string `mapstructure:"name"`
	Key       string `mapstructure:"key"`
	Active    bool   `mapstructure:"active"`
	ExpiredAt any    `mapstructure:"expired_at"`
}

type NatsJetstreamConfig struct {
	URL             string                   `mapstructure:"url"`
	MaxRetries      int                      `mapstructure:"max_retries"`
	ReconnectFactor float64                  `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration            `mapstructure:"min_jitter"`
	MaxJitter       time.Duration            `mapstructure:"max_jitter"`
	TimeoutHandler  map[string]time.Duration `mapstructure:"timeout_handler"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

func LoadConfig(configPath string) error {
	viper.Reset()
	setDefaults()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("env", "development")
	viper.SetDefault("log.log_level", "info")
	viper.SetDefault("graceful_shutdown_timeout", 10*time.Second)
	viper.SetDefault("port.quote_gateway_http", "8080")

	viper.SetDefault("quote_gateway.tick_interval", 500*time.Millisecond)
	viper.SetDefault("quote_gateway.retrieval_timeout", time.Second)
	viper.SetDefault("quote_gateway.cache_ttl", 200*time.Millisecond)
	viper.SetDefault("quote_gateway.max_concurrent_retrievals", 16)
	viper.SetDefault("quote_gateway.heartbeat_interval", 60*time.Second)
	viper.SetDefault("quote_gateway.client_timeout", 120*time.Second)
	viper.SetDefault("quote_gateway.write_wait", 5*time.Second)
	viper.SetDefault("quote_gateway.send_buffer", 256)
	viper.SetDefault("quote_gateway.read_limit", 4096)
	viper.SetDefault("quote_gateway.history_size", 120)
	viper.SetDefault("quote_gateway.source.driver", "simulated")
	viper.SetDefault("quote_gateway.source.request_timeout", 5*time.Second)
	viper.SetDefault("quote_gateway.source.rate_limit", 10.0)
	viper.SetDefault("quote_gateway.source.burst", 10)

	viper.SetDefault("quote_viewer.url", "ws://localhost:8080/ws")
	viper.SetDefault("quote_viewer.max_reconnect_attempts", 3)
	viper.SetDefault("quote_viewer.base_delay", 3*time.Second)
	viper.SetDefault("quote_viewer.max_delay", 10*time.Second)
	viper.SetDefault("quote_viewer.backoff_factor", 1.5)
	viper.SetDefault("quote_viewer.manual_reconnect_delay", time.Second)
	viper.SetDefault("quote_viewer.handshake_timeout", 10*time.Second)
	viper.SetDefault("quote_viewer.ping_interval", 30*time.Second)
}
