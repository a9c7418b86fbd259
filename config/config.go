package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Vendor   VendorConfig   `yaml:"vendor"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Email    EmailConfig    `yaml:"email"`
	API      APIConfig      `yaml:"api"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                        string `yaml:"host"`
	Port                        int    `yaml:"port"`
	OrderStatusUpdatedTopicName string `yaml:"order_status_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type VendorConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"` // "http" | "fake"
}

type WatcherConfig struct {
	OrderID             string `yaml:"order_id"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	HTTPAddr            string `yaml:"http_addr"`
}

type EmailConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Server               string `yaml:"server"`
	Port                 int    `yaml:"port"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	Folder               string `yaml:"folder"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
}

type APIConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
