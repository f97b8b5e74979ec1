package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DebugMode turns on verbose lifecycle logging. Set from BRIDGE_DEBUG.
var DebugMode bool

type Config struct {
	Feed struct {
		WebsocketURL     string        `yaml:"websocket_url"`
		RestURL          string        `yaml:"rest_url"`
		Products         []string      `yaml:"products"`
		DefaultProduct   string        `yaml:"default_product"`
		BatchInterval    time.Duration `yaml:"batch_interval"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		ReadLimit        int64         `yaml:"read_limit"`
	} `yaml:"feed"`
	View struct {
		Depth       int    `yaml:"depth"`
		Aggregation string `yaml:"aggregation"`
	} `yaml:"view"`
	Server struct {
		GRPCAddr    string `yaml:"grpc_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

func defaultConfig() Config {
	var c Config
	c.Feed.WebsocketURL = "wss://ws-feed.exchange.coinbase.com"
	c.Feed.RestURL = "https://api.exchange.coinbase.com"
	c.Feed.Products = []string{"BTC-USD", "ETH-USD", "LTC-USD", "BCH-USD"}
	c.Feed.DefaultProduct = "BTC-USD"
	c.Feed.BatchInterval = time.Second
	c.Feed.HandshakeTimeout = 5 * time.Second
	c.Feed.ReadLimit = 5 * 1024 * 1024
	c.View.Depth = 15
	c.View.Aggregation = "0"
	c.Server.GRPCAddr = ":50051"
	c.Server.MetricsAddr = ":8080"
	c.Logging.Level = "info"
	c.Logging.Pretty = false
	return c
}

// Load builds the config from defaults, then the YAML file named by BRIDGE_CONFIG,
// then BRIDGE_* variables. A .env file in the working directory is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := defaultConfig()
	if path := os.Getenv("BRIDGE_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&c); err != nil {
		return c, err
	}

	DebugMode = isTrue(os.Getenv("BRIDGE_DEBUG"))
	return c, c.validate()
}

func applyEnv(c *Config) error {
	if v := os.Getenv("BRIDGE_WEBSOCKET_URL"); v != "" {
		c.Feed.WebsocketURL = v
	}
	if v := os.Getenv("BRIDGE_REST_URL"); v != "" {
		c.Feed.RestURL = v
	}
	if v := os.Getenv("BRIDGE_PRODUCTS"); v != "" {
		c.Feed.Products = splitCSV(v)
	}
	if v := os.Getenv("BRIDGE_DEFAULT_PRODUCT"); v != "" {
		c.Feed.DefaultProduct = v
	}
	if v := os.Getenv("BRIDGE_BATCH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_BATCH_INTERVAL: %w", err)
		}
		c.Feed.BatchInterval = d
	}
	if v := os.Getenv("BRIDGE_VIEW_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_VIEW_DEPTH: %w", err)
		}
		c.View.Depth = n
	}
	if v := os.Getenv("BRIDGE_VIEW_AGGREGATION"); v != "" {
		c.View.Aggregation = v
	}
	if v := os.Getenv("BRIDGE_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv("BRIDGE_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BRIDGE_LOG_PRETTY"); v != "" {
		c.Logging.Pretty = isTrue(v)
	}
	return nil
}

func (c Config) validate() error {
	if c.Feed.WebsocketURL == "" {
		return fmt.Errorf("feed.websocket_url must be set")
	}
	if len(c.Feed.Products) == 0 {
		return fmt.Errorf("feed.products must not be empty")
	}
	if c.Feed.BatchInterval <= 0 {
		return fmt.Errorf("feed.batch_interval must be positive")
	}
	if c.View.Depth <= 0 {
		return fmt.Errorf("view.depth must be positive")
	}
	return nil
}

func isTrue(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
