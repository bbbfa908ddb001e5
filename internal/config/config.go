package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Sweeper  *sweeperConfig
	Queue    *queueConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"asset_ingest"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	LogLevel        string `envconfig:"ASSET_INGEST_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"ASSET_INGEST_MIGRATIONS_FOLDER" default:""`
	EventTopic      string `envconfig:"ASSET_INGEST_EVENT_TOPIC" default:"asset.ingest.events"`
	BatchSize       int    `envconfig:"ASSET_INGEST_BATCH_SIZE" default:"50"`
}

type sweeperConfig struct {
	Interval       string `envconfig:"ASSET_INGEST_SWEEP_INTERVAL" default:"60s"`
	StallThreshold string `envconfig:"ASSET_INGEST_STALL_THRESHOLD" default:"2m"`
	StartupDelay   string `envconfig:"ASSET_INGEST_SWEEP_STARTUP_DELAY" default:"10s"`
}

type queueConfig struct {
	MaxWorkers    int    `envconfig:"ASSET_INGEST_QUEUE_MAX_WORKERS" default:"10"`
	DebounceDelay string `envconfig:"ASSET_INGEST_AGGREGATION_DEBOUNCE" default:"5s"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil
	}
	return cfg
}
