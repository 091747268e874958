package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Warehouse   WarehouseConfig   `yaml:"warehouse"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	DelayBoard  DelayBoardConfig  `yaml:"delayboard"`

	// Stores overrides the built-in warehouse code -> store name table. An
	// empty name removes a built-in entry.
	Stores map[string]string `yaml:"stores"`
}

type MarketplaceConfig struct {
	BaseURL    string          `yaml:"base_url" validate:"omitempty,url"`
	Mode       string          `yaml:"mode" validate:"omitempty,oneof=trendyol fake"`
	PageSize   int             `yaml:"page_size" validate:"gte=0,lte=1000"`
	WindowDays int             `yaml:"window_days" validate:"gte=0"`
	Statuses   []string        `yaml:"statuses" validate:"dive,required"`
	Accounts   []AccountConfig `yaml:"accounts" validate:"required,min=1,unique=ID,dive"`
}

type AccountConfig struct {
	ID       string `yaml:"id" validate:"required"`
	SellerID string `yaml:"seller_id" validate:"required"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type WarehouseConfig struct {
	BaseURL            string `yaml:"base_url" validate:"required_unless=Mode fake,omitempty,url"`
	Mode               string `yaml:"mode" validate:"omitempty,oneof=hamurlabs fake"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	CompanyID          string `yaml:"company_id"`
	WindowDays         int    `yaml:"window_days" validate:"gte=0"`
	TimeoutSeconds     int    `yaml:"timeout_seconds" validate:"gte=0"`
	LookupKey          string `yaml:"lookup_key" validate:"omitempty,oneof=tracking_code internal_id"`
	Concurrency        int    `yaml:"concurrency" validate:"gte=0"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" validate:"gte=0"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port" validate:"gte=0,lte=65535"`
	OrderOverdueTopicName string `yaml:"order_overdue_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
}

type DelayBoardConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`

	// TimezoneOffsetHours is the fixed UTC offset of the operating zone.
	// Unset means UTC+3.
	TimezoneOffsetHours *int `yaml:"timezone_offset_hours" validate:"omitempty,gte=-12,lte=14"`

	SnapshotTTLSeconds    int    `yaml:"snapshot_ttl_seconds" validate:"gte=0"`
	SnapshotCache         string `yaml:"snapshot_cache" validate:"omitempty,oneof=memory redis"`
	RefreshTimeoutSeconds int    `yaml:"refresh_timeout_seconds" validate:"gte=0"`
	NotifierConsumerGroup string `yaml:"notifier_consumer_group"`
	NotifierHTTPAddr      string `yaml:"notifier_http_addr"`
}

func (k KafkaConfig) Enabled() bool { return k.Host != "" && k.Port > 0 }

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

func (r RedisConfig) Enabled() bool { return r.Host != "" && r.Port > 0 }

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoadConfig reads a YAML config. ${VAR} references are expanded from the
// environment first; a .env file next to the config, if present, is loaded
// into the environment without overriding variables already set.
func LoadConfig(filename string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(filename), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

var validate = validator.New()

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
