package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Engine struct {
		TickSize       float64 `yaml:"tick_size"`
		ResidualPolicy string  `yaml:"residual_policy"` // "discard" or "rest"
		LogLevel       string  `yaml:"log_level"`
		LogFormat      string  `yaml:"log_format"`
	} `yaml:"engine"`

	Journal struct {
		Backend string `yaml:"backend"` // "none", "pebble" or "redis"
		Dir     string `yaml:"dir"`     // pebble data directory
	} `yaml:"journal"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
	} `yaml:"kafka"`
}

// Default configuration values
var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	tickSize   = flag.Float64("tick_size", 0.001, "Minimum price increment")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
)

// LoadConfig loads the configuration from command line flags and optionally
// from a config file
func LoadConfig() (*Config, error) {
	flag.Parse()

	config := &Config{}
	config.Engine.TickSize = *tickSize
	config.Engine.ResidualPolicy = "discard"
	config.Engine.LogLevel = *logLevel
	config.Engine.LogFormat = *logFormat
	config.Journal.Backend = "none"
	config.Journal.Dir = "data/journal"
	config.Redis.Addr = "localhost:6379"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.Topic = "golob-executions"

	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validate(cfg *Config) error {
	if cfg.Engine.TickSize <= 0 {
		return fmt.Errorf("tick_size must be positive")
	}
	switch cfg.Engine.ResidualPolicy {
	case "discard", "rest":
	default:
		return fmt.Errorf("residual_policy must be %q or %q", "discard", "rest")
	}
	switch cfg.Journal.Backend {
	case "none", "pebble", "redis":
	default:
		return fmt.Errorf("journal backend must be %q, %q or %q", "none", "pebble", "redis")
	}
	return nil
}
