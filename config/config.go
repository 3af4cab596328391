package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/z80dev/puente/pkg/db/queue"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		HTTPAddr  string `yaml:"http_addr"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`

	Book struct {
		Name    string `yaml:"name"`
		Domain  uint32 `yaml:"domain"`
		Address string `yaml:"address"`
		Owner   string `yaml:"owner"`
		Backend string `yaml:"backend"`
	} `yaml:"book"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		BrokerAddr string `yaml:"broker_addr"`
		EventTopic string `yaml:"event_topic"`
		GroupID    string `yaml:"group_id"`
	} `yaml:"kafka"`

	Relay struct {
		Transport string `yaml:"transport"` // local or kafka
	} `yaml:"relay"`

	Otel struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"otel"`
}

// Default configuration values
var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	httpPort   = flag.Int("http_port", 8080, "The HTTP server port")
	domain     = flag.Uint("domain", 1, "The book's domain id")
	backend    = flag.String("backend", "memory", "Book backend: memory, redis")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
)

// LoadConfig loads the configuration from command line flags and optionally from a config file
func LoadConfig() (*Config, error) {
	// Parse command line flags
	flag.Parse()

	// Create default configuration
	config := &Config{}
	config.Server.HTTPAddr = fmt.Sprintf(":%d", *httpPort)
	config.Server.LogLevel = *logLevel
	config.Server.LogFormat = *logFormat
	config.Book.Name = "puente"
	config.Book.Domain = uint32(*domain)
	config.Book.Backend = *backend
	config.Redis.Addr = "localhost:6379"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.EventTopic = "puente-book-events"
	config.Kafka.GroupID = "puente-relay"
	config.Relay.Transport = "local"
	config.Otel.Endpoint = "localhost:4317"

	// Load configuration from file if specified
	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Parse YAML configuration
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Log loaded configuration
		log.Printf("Loaded configuration from %s", *configFile)
	}

	// Push Kafka settings down to the event sender pool
	queue.SetBrokerConfig(strings.Split(config.Kafka.BrokerAddr, ","), config.Kafka.EventTopic)

	return config, nil
}
