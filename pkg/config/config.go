package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Delivery     DeliveryConfig
	FeatureFlags FeatureFlags
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDIGO_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"MEDIGO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDIGO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MEDIGO_DB_DSN"`
	Driver string `envconfig:"MEDIGO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEDIGO_DB_HOST"`
	LegacyPort     int    `envconfig:"MEDIGO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEDIGO_DB_USER"`
	LegacyPassword string `envconfig:"MEDIGO_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEDIGO_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEDIGO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDIGO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDIGO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDIGO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDIGO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"MEDIGO_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"MEDIGO_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"MEDIGO_PUBSUB_DOMAIN_TOPIC" default:"medigo-domain-events"`
	DomainSubscription string `envconfig:"MEDIGO_PUBSUB_DOMAIN_SUBSCRIPTION" default:"medigo-domain-events-sub"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MEDIGO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MEDIGO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MEDIGO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlags struct {
	AutoMigrate bool `envconfig:"MEDIGO_AUTO_MIGRATE" default:"false"`
}

// DeliveryConfig holds the delivery fee schedule. Amounts are decimal strings
// so the schedule round-trips through env vars without float drift.
type DeliveryConfig struct {
	BaseFee  string `envconfig:"MEDIGO_DELIVERY_BASE_FEE" default:"500"`
	PerKmFee string `envconfig:"MEDIGO_DELIVERY_PER_KM_FEE" default:"200"`
	MaxFee   string `envconfig:"MEDIGO_DELIVERY_MAX_FEE" default:"5000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
