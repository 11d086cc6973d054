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
	Carrier  CarrierConfig  `yaml:"carrier"`
	ShipBox  ShipBoxConfig  `yaml:"shipbox"`
	Log      LogConfig      `yaml:"log"`
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
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	OrderConfirmedTopicName string `yaml:"order_confirmed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CarrierConfig struct {
	BaseURL        string `yaml:"base_url"`
	Email          string `yaml:"email"`
	Password       string `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// "http" (default) talks to the real API and needs base_url, "fake" uses
	// the in-process carrier.
	Mode string `yaml:"mode"`
}

type ShipBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	TrackingCacheTTLSeconds   int `yaml:"tracking_cache_ttl_seconds"`
	TrackingConcurrency       int `yaml:"tracking_concurrency"`
	CarrierRateLimitPerMinute int `yaml:"carrier_rate_limit_per_minute"`
	CreateLockTTLSeconds      int `yaml:"create_lock_ttl_seconds"`

	DefaultCountry string `yaml:"default_country"`
	OrderDateZone  string `yaml:"order_date_zone"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds"`
	WorkerPollJitterSeconds   int    `yaml:"worker_poll_jitter_seconds"`
	WorkerBatchSize           int    `yaml:"worker_batch_size"`
	WorkerBackoff1Seconds     int    `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds     int    `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds     int    `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds     int    `yaml:"worker_backoff_4_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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

// DSN builds the pgx connection string.
func (d DatabaseConfig) DSN() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.Username, d.Password, d.Host, d.Port, d.DBName, ssl)
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
