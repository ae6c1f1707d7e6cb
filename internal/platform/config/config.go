// Package config loads service configuration from the environment.
//
// The env surface mirrors the deployment layout: one block per backing
// service plus the public URLs handed to the emailer templates. Defaults are
// development values; deployments override everything via the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration for the registry service and its workers.
type Config struct {
	Addr            string        `env:"NAMEREG_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"NAMEREG_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Auth     Auth
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Solr     Solr
	Emailer  Emailer
	Deploy   Deploy
}

// Auth configures bearer-token validation for staff endpoints.
type Auth struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer        string `env:"JWT_ISSUER" envDefault:"namereg"`
	Audience      string `env:"JWT_AUDIENCE" envDefault:"namereg-api"`
}

// Postgres holds connection settings for the registry database.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:"localhost"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:"namereg"`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Name     string `env:"PG_DB_NAME" envDefault:"namereg"`
	SSLMode  string `env:"PG_SSLMODE" envDefault:"disable"`
}

// DSN renders the lib/pq connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Name, p.SSLMode)
}

// Redis configures the emailer dedupe cache and the deferred-send schedule.
// An empty URL disables Redis-backed features.
type Redis struct {
	URL          string        `env:"REDIS_URL" envDefault:""`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures the notification queue and the search-index feed.
type Kafka struct {
	Brokers           []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	NotificationTopic string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"namereg.email-notifications"`
	SearchFeedTopic   string   `env:"KAFKA_SEARCH_FEED_TOPIC" envDefault:"namereg.search-feed"`
	ConsumerGroup     string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"namereg-workers"`
}

// Solr configures the conflict-search index.
type Solr struct {
	BaseURL   string        `env:"SOLR_BASE_URL" envDefault:"http://localhost:8983/solr"`
	NamesCore string        `env:"SOLR_NAMES_CORE" envDefault:"names"`
	Timeout   time.Duration `env:"SOLR_TIMEOUT" envDefault:"25s"`
}

// Emailer carries the notification microservice surface: sender identity,
// the public URLs substituted into templates, and scheduling knobs.
type Emailer struct {
	From                string        `env:"EMAILER_FROM" envDefault:"registry@example.gov"`
	NameRequestURL      string        `env:"NAME_REQUEST_URL" envDefault:"https://names.example.gov"`
	DecideBusinessURL   string        `env:"DECIDE_BUSINESS_URL" envDefault:"https://entity-selection.example.gov"`
	CorpOnlineURL       string        `env:"COLIN_URL" envDefault:"https://corporate-online.example.gov"`
	CorpFormsURL        string        `env:"CORP_FORMS_URL" envDefault:"https://forms.example.gov"`
	SocietiesURL        string        `env:"SOCIETIES_URL" envDefault:"https://societies.example.gov"`
	StepsToRestoreURL   string        `env:"STEPS_TO_RESTORE_URL" envDefault:"https://restore.example.gov"`
	BeforeExpiryLeadDur time.Duration `env:"EMAILER_BEFORE_EXPIRY_LEAD" envDefault:"336h"` // 14 days
	SchedulePollEvery   time.Duration `env:"EMAILER_SCHEDULE_POLL" envDefault:"1m"`
	DedupeTTL           time.Duration `env:"EMAILER_DEDUPE_TTL" envDefault:"24h"`
}

// Deploy describes the dev/test/prod promotion stages for the ops endpoint.
// The three-stage shape is fixed; only the bindings vary per installation.
type Deploy struct {
	DevProject         string `env:"DEPLOY_DEV_PROJECT" envDefault:"namereg-dev"`
	DevServiceAccount  string `env:"DEPLOY_DEV_SERVICE_ACCOUNT" envDefault:"sa-dev@namereg-dev.iam"`
	TestProject        string `env:"DEPLOY_TEST_PROJECT" envDefault:"namereg-test"`
	TestServiceAccount string `env:"DEPLOY_TEST_SERVICE_ACCOUNT" envDefault:"sa-test@namereg-test.iam"`
	ProdProject        string `env:"DEPLOY_PROD_PROJECT" envDefault:"namereg-prod"`
	ProdServiceAccount string `env:"DEPLOY_PROD_SERVICE_ACCOUNT" envDefault:"sa-prod@namereg-prod.iam"`
	Service            string `env:"DEPLOY_SERVICE" envDefault:"namereg-solr-feeder"`
}

// Load builds the configuration from environment variables so main stays lean.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config from env: %w", err)
	}
	return cfg, nil
}
