/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_PORT               = "5001"
	DEFAULT_MONITORING_PORT    = "5004"
	DEFAULT_DAILY_LIMIT        = 500000
	DEFAULT_PRECISION          = 100
	DEFAULT_DIFFICULTY         = 2
	DEFAULT_MIN_DIFFICULTY     = 1
	DEFAULT_DISK_ALERT_PERCENT = 80.0
	DEFAULT_MAX_ITERATIONS     = 5_000_000
	DEFAULT_WEBHOOK_QUEUE      = "webhook_queue"
	DEFAULT_RECOVERY_QUEUE     = "chain_recovery_queue"

	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	ChainStoreFile = "file"
	ChainStoreBolt = "bolt"
)

var ConfigStore atomic.Value

// APIKey is a caller credential limited to its scopes, e.g. "transfers:write" or
// "*:read". Caller keys never reach /admin.
type APIKey struct {
	Name   string   `json:"name" toml:"name" yaml:"name"`
	Key    string   `json:"key" toml:"key" yaml:"key"`
	Scopes []string `json:"scopes" toml:"scopes" yaml:"scopes"`
}

type ServerConfig struct {
	SSL       bool     `json:"ssl" toml:"ssl" yaml:"ssl" envconfig:"PAYCHAIN_SERVER_SSL"`
	Secure    bool     `json:"secure" toml:"secure" yaml:"secure" envconfig:"PAYCHAIN_SERVER_SECURE"`
	SecretKey string   `json:"secret_key" toml:"secret_key" yaml:"secret_key" envconfig:"PAYCHAIN_SERVER_SECRET_KEY"`
	APIKeys   []APIKey `json:"api_keys" toml:"api_keys" yaml:"api_keys" ignored:"true"`
	Domain    string   `json:"domain" toml:"domain" yaml:"domain" envconfig:"PAYCHAIN_SERVER_SSL_DOMAIN"`
	Email     string   `json:"ssl_email" toml:"ssl_email" yaml:"ssl_email" envconfig:"PAYCHAIN_SERVER_SSL_EMAIL"`
	Port      string   `json:"port" toml:"port" yaml:"port" envconfig:"PAYCHAIN_SERVER_PORT"`
}

type DataSourceConfig struct {
	Driver string `json:"driver" toml:"driver" yaml:"driver" envconfig:"PAYCHAIN_DATA_SOURCE_DRIVER"`
	Dns    string `json:"dns" toml:"dns" yaml:"dns" envconfig:"PAYCHAIN_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" toml:"dns" yaml:"dns" envconfig:"PAYCHAIN_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" toml:"skip_tls_verify" yaml:"skip_tls_verify" envconfig:"PAYCHAIN_REDIS_SKIP_TLS_VERIFY"`
}

type ChainConfig struct {
	Store         string `json:"store" toml:"store" yaml:"store" envconfig:"PAYCHAIN_CHAIN_STORE"`
	File          string `json:"file" toml:"file" yaml:"file" envconfig:"PAYCHAIN_CHAIN_FILE"`
	BackupFile    string `json:"backup_file" toml:"backup_file" yaml:"backup_file" envconfig:"PAYCHAIN_CHAIN_BACKUP_FILE"`
	BoltPath      string `json:"bolt_path" toml:"bolt_path" yaml:"bolt_path" envconfig:"PAYCHAIN_CHAIN_BOLT_PATH"`
	Difficulty    uint   `json:"difficulty" toml:"difficulty" yaml:"difficulty" envconfig:"PAYCHAIN_CHAIN_DIFFICULTY"`
	MinDifficulty uint   `json:"min_difficulty" toml:"min_difficulty" yaml:"min_difficulty" envconfig:"PAYCHAIN_CHAIN_MIN_DIFFICULTY"`
	MaxIterations uint64 `json:"max_iterations" toml:"max_iterations" yaml:"max_iterations" envconfig:"PAYCHAIN_CHAIN_MAX_ITERATIONS"`
	// DiskAlertPercent is the used-space percentage of the chain volume above which workers raise an alert.
	DiskAlertPercent float64 `json:"disk_alert_percent" toml:"disk_alert_percent" yaml:"disk_alert_percent" envconfig:"PAYCHAIN_CHAIN_DISK_ALERT_PERCENT"`
}

type TransferConfig struct {
	// DailyLimit is expressed in minor units.
	DailyLimit       int64  `json:"daily_limit" toml:"daily_limit" yaml:"daily_limit" envconfig:"PAYCHAIN_TRANSFER_DAILY_LIMIT"`
	Precision        int64  `json:"precision" toml:"precision" yaml:"precision" envconfig:"PAYCHAIN_TRANSFER_PRECISION"`
	Timezone         string `json:"timezone" toml:"timezone" yaml:"timezone" envconfig:"PAYCHAIN_TRANSFER_TIMEZONE"`
	RecordRejections bool   `json:"record_rejections" toml:"record_rejections" yaml:"record_rejections" envconfig:"PAYCHAIN_TRANSFER_RECORD_REJECTIONS"`
}

type RecoveryConfig struct {
	Interval string `json:"interval" toml:"interval" yaml:"interval" envconfig:"PAYCHAIN_RECOVERY_INTERVAL"`
	Actor    string `json:"actor" toml:"actor" yaml:"actor" envconfig:"PAYCHAIN_RECOVERY_ACTOR"`
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" toml:"webhook_queue" yaml:"webhook_queue" envconfig:"PAYCHAIN_QUEUE_WEBHOOK"`
	RecoveryQueue  string `json:"recovery_queue" toml:"recovery_queue" yaml:"recovery_queue" envconfig:"PAYCHAIN_QUEUE_RECOVERY"`
	MonitoringPort string `json:"monitoring_port" toml:"monitoring_port" yaml:"monitoring_port" envconfig:"PAYCHAIN_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" toml:"requests_per_second" yaml:"requests_per_second" envconfig:"PAYCHAIN_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" toml:"burst" yaml:"burst" envconfig:"PAYCHAIN_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" toml:"cleanup_interval_sec" yaml:"cleanup_interval_sec" envconfig:"PAYCHAIN_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// TracingConfig points the OpenTelemetry exporter at an OTLP/HTTP collector. With no
// endpoint, spans are written to stdout.
type TracingConfig struct {
	Endpoint string `json:"endpoint" toml:"endpoint" yaml:"endpoint" envconfig:"PAYCHAIN_TRACING_ENDPOINT"`
	Insecure bool   `json:"insecure" toml:"insecure" yaml:"insecure" envconfig:"PAYCHAIN_TRACING_INSECURE"`
}

type LoggingConfig struct {
	Level      string `json:"level" toml:"level" yaml:"level" envconfig:"PAYCHAIN_LOG_LEVEL"`
	File       string `json:"file" toml:"file" yaml:"file" envconfig:"PAYCHAIN_LOG_FILE"`
	MaxSizeMB  int    `json:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb" envconfig:"PAYCHAIN_LOG_MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" toml:"max_backups" yaml:"max_backups" envconfig:"PAYCHAIN_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `json:"max_age_days" toml:"max_age_days" yaml:"max_age_days" envconfig:"PAYCHAIN_LOG_MAX_AGE_DAYS"`
	Compress   bool   `json:"compress" toml:"compress" yaml:"compress" envconfig:"PAYCHAIN_LOG_COMPRESS"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" toml:"webhook_url" yaml:"webhook_url" envconfig:"PAYCHAIN_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" toml:"url" yaml:"url" envconfig:"PAYCHAIN_WEBHOOK_URL"`
	Headers map[string]string `json:"headers" toml:"headers" yaml:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack" toml:"slack" yaml:"slack"`
	Webhook WebhookConfig `json:"webhook" toml:"webhook" yaml:"webhook"`
}

type Configuration struct {
	ProjectName        string           `json:"project_name" toml:"project_name" yaml:"project_name" envconfig:"PAYCHAIN_PROJECT_NAME"`
	BackupDir          string           `json:"backup_dir" toml:"backup_dir" yaml:"backup_dir" envconfig:"PAYCHAIN_BACKUP_DIR"`
	AwsAccessKeyId     string           `json:"aws_access_key_id" toml:"aws_access_key_id" yaml:"aws_access_key_id" envconfig:"PAYCHAIN_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string           `json:"aws_secret_access_key" toml:"aws_secret_access_key" yaml:"aws_secret_access_key" envconfig:"PAYCHAIN_AWS_SECRET_ACCESS_KEY"`
	S3Endpoint         string           `json:"s3_endpoint" toml:"s3_endpoint" yaml:"s3_endpoint" envconfig:"PAYCHAIN_S3_ENDPOINT"`
	S3BucketName       string           `json:"s3_bucket_name" toml:"s3_bucket_name" yaml:"s3_bucket_name" envconfig:"PAYCHAIN_S3_BUCKET_NAME"`
	S3Region           string           `json:"s3_region" toml:"s3_region" yaml:"s3_region" envconfig:"PAYCHAIN_S3_REGION"`
	Server             ServerConfig     `json:"server" toml:"server" yaml:"server"`
	DataSource         DataSourceConfig `json:"data_source" toml:"data_source" yaml:"data_source"`
	Redis              RedisConfig      `json:"redis" toml:"redis" yaml:"redis"`
	Chain              ChainConfig      `json:"chain" toml:"chain" yaml:"chain"`
	Transfer           TransferConfig   `json:"transfer" toml:"transfer" yaml:"transfer"`
	Recovery           RecoveryConfig   `json:"recovery" toml:"recovery" yaml:"recovery"`
	Queue              QueueConfig      `json:"queue" toml:"queue" yaml:"queue"`
	Notification       Notification     `json:"notification" toml:"notification" yaml:"notification"`
	RateLimit          RateLimitConfig  `json:"rate_limit" toml:"rate_limit" yaml:"rate_limit"`
	Logging            LoggingConfig    `json:"logging" toml:"logging" yaml:"logging"`
	EnableTelemetry    bool             `json:"enable_telemetry" toml:"enable_telemetry" yaml:"enable_telemetry" envconfig:"PAYCHAIN_ENABLE_TELEMETRY"`
	Tracing            TracingConfig    `json:"tracing" toml:"tracing" yaml:"tracing"`
}

// decodeFile reads file into cnf using the decoder its extension calls for. JSON is
// the default.
func decodeFile(file string, cnf *Configuration) error {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".toml":
		_, err := toml.DecodeFile(file, cnf)
		return err
	case ".yaml", ".yml":
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		return yaml.NewDecoder(f).Decode(cnf)
	default:
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		return json.NewDecoder(f).Decode(cnf)
	}
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		if err := decodeFile(file, &cnf); err != nil {
			return fmt.Errorf("failed to decode %s: %w", file, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config file not found, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("paychain", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	if err := loadConfigFromFile(configFile); err != nil {
		return err
	}
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	return ConfigureLogging(cnf.Logging)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called paychain.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Paychain"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Driver = strings.TrimSpace(cnf.DataSource.Driver)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if err := cnf.validateDataSource(); err != nil {
		return err
	}
	if err := cnf.validateChain(); err != nil {
		return err
	}
	if err := cnf.validateTransfer(); err != nil {
		return err
	}

	if cnf.Recovery.Actor == "" {
		cnf.Recovery.Actor = "scheduler"
	}
	if cnf.Recovery.Interval != "" {
		if _, err := time.ParseDuration(cnf.Recovery.Interval); err != nil {
			return fmt.Errorf("invalid recovery interval %q: %w", cnf.Recovery.Interval, err)
		}
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.RecoveryQueue == "" {
		cnf.Queue.RecoveryQueue = DEFAULT_RECOVERY_QUEUE
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.BackupDir == "" {
		cnf.BackupDir = "backups"
	}

	if cnf.Logging.Level == "" {
		cnf.Logging.Level = "info"
	}
	if _, err := logrus.ParseLevel(cnf.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q", cnf.Logging.Level)
	}

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (cnf *Configuration) validateDataSource() error {
	switch cnf.DataSource.Driver {
	case "":
		cnf.DataSource.Driver = DriverSQLite
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported data source driver %q", cnf.DataSource.Driver)
	}

	if cnf.DataSource.Dns == "" {
		if cnf.DataSource.Driver == DriverPostgres {
			log.Println("Error: Data source DNS is empty. It's a required field.")
			return errors.New("data source DNS is required")
		}
		cnf.DataSource.Dns = "data/paychain.db"
	}
	return nil
}

func (cnf *Configuration) validateChain() error {
	c := &cnf.Chain
	switch c.Store {
	case "":
		c.Store = ChainStoreFile
	case ChainStoreFile, ChainStoreBolt:
	default:
		return fmt.Errorf("unsupported chain store %q", c.Store)
	}

	if c.File == "" {
		c.File = "data/chain.json"
	}
	if c.BackupFile == "" {
		c.BackupFile = "data/chain.backup.json"
	}
	if c.BoltPath == "" {
		c.BoltPath = "data/chain.db"
	}
	if c.DiskAlertPercent <= 0 || c.DiskAlertPercent > 100 {
		c.DiskAlertPercent = DEFAULT_DISK_ALERT_PERCENT
	}
	if c.Difficulty == 0 {
		c.Difficulty = DEFAULT_DIFFICULTY
	}
	if c.Difficulty > 64 {
		return errors.New("chain difficulty must be at most 64")
	}
	if c.MinDifficulty == 0 {
		c.MinDifficulty = DEFAULT_MIN_DIFFICULTY
	}
	if c.MinDifficulty > c.Difficulty {
		c.MinDifficulty = c.Difficulty
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DEFAULT_MAX_ITERATIONS
	}
	return nil
}

func (cnf *Configuration) validateTransfer() error {
	t := &cnf.Transfer
	if t.DailyLimit < 0 {
		return errors.New("daily limit cannot be negative")
	}
	if t.DailyLimit == 0 {
		t.DailyLimit = DEFAULT_DAILY_LIMIT
	}
	if t.Precision < 0 {
		return errors.New("precision cannot be negative")
	}
	if t.Precision == 0 {
		t.Precision = DEFAULT_PRECISION
	}
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
	}
	return nil
}

// Location returns the timezone in which calendar days are counted for the daily limit.
func (t TransferConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IntervalDuration returns the scheduled recovery interval, zero when disabled.
func (r RecoveryConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(r.Interval)
	if err != nil {
		return 0
	}
	return d
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
