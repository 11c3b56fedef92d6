package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Algolia  AlgoliaConfig  `yaml:"algolia"`
	Feed     FeedConfig     `yaml:"feed"`
	Sync     SyncConfig     `yaml:"sync"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Listings ListingsConfig `yaml:"listings"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RabbitMQConfig configures the optional event publisher. An empty URL
// disables publishing entirely.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type AlgoliaConfig struct {
	AppID            string        `yaml:"app_id"`
	APIKey           string        `yaml:"api_key"`
	ArticlesIndex    string        `yaml:"articles_index"`
	ClassifiedsIndex string        `yaml:"classifieds_index"`
	Timeout          time.Duration `yaml:"timeout"`
}

type FeedConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SyncConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunTimeout time.Duration `yaml:"run_timeout"`
	BatchSize  int           `yaml:"batch_size"`
}

type SweepConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type ListingsConfig struct {
	DefaultDurationDays int    `yaml:"default_duration_days"`
	WebhookSecret       string `yaml:"webhook_secret"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "indexsync"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "events"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "indexsync_events"
	}
	if c.Algolia.ArticlesIndex == "" {
		c.Algolia.ArticlesIndex = "posts"
	}
	if c.Algolia.ClassifiedsIndex == "" {
		c.Algolia.ClassifiedsIndex = "classifieds"
	}
	if c.Algolia.Timeout == 0 {
		c.Algolia.Timeout = 10 * time.Second
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = 10 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 6 * time.Hour
	}
	if c.Sync.RunTimeout == 0 {
		c.Sync.RunTimeout = 5 * time.Minute
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 50
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 1 * time.Hour
	}
	if c.Sweep.RunTimeout == 0 {
		c.Sweep.RunTimeout = 2 * time.Minute
	}
	if c.Listings.DefaultDurationDays == 0 {
		c.Listings.DefaultDurationDays = 30
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
