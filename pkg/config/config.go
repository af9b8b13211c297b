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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Admin        AdminConfig
	Tenant       TenantConfig
	Deploy       DeployConfig
	Domain       DomainConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Tenant.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Deploy.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PROVISIONER_APP_ENV" required:"true"`
	Port         string `envconfig:"PROVISIONER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PROVISIONER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PROVISIONER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PROVISIONER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PROVISIONER_DB_DSN"`
	Driver string `envconfig:"PROVISIONER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PROVISIONER_DB_HOST"`
	LegacyPort     int    `envconfig:"PROVISIONER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PROVISIONER_DB_USER"`
	LegacyPassword string `envconfig:"PROVISIONER_DB_PASSWORD"`
	LegacyName     string `envconfig:"PROVISIONER_DB_NAME"`
	LegacySSLMode  string `envconfig:"PROVISIONER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROVISIONER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROVISIONER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROVISIONER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROVISIONER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"PROVISIONER_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PROVISIONER_REDIS_URL"`
	Address      string        `envconfig:"PROVISIONER_REDIS_ADDR"`
	Password     string        `envconfig:"PROVISIONER_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROVISIONER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROVISIONER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROVISIONER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROVISIONER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROVISIONER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROVISIONER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AdminConfig guards the operator API. An empty token disables the check,
// which is only honoured outside production.
type AdminConfig struct {
	APIToken string `envconfig:"PROVISIONER_ADMIN_API_TOKEN"`
}

type TenantConfig struct {
	Engine      string        `envconfig:"PROVISIONER_TENANT_ENGINE" default:"postgres"`
	NamePrefix  string        `envconfig:"PROVISIONER_TENANT_NAME_PREFIX" default:"store_"`
	AdminDSN    string        `envconfig:"PROVISIONER_TENANT_ADMIN_DSN"`
	MongoURI    string        `envconfig:"PROVISIONER_TENANT_MONGO_URI"`
	CallTimeout time.Duration `envconfig:"PROVISIONER_TENANT_CALL_TIMEOUT" default:"10s"`
	MaxConns    int32         `envconfig:"PROVISIONER_TENANT_MAX_CONNS" default:"4"`
}

func (t TenantConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(t.Engine)) {
	case TenantEnginePostgres:
		if t.AdminDSN == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvTenantAdminDSN, EnvTenantEngine, TenantEnginePostgres)
		}
	case TenantEngineMongo:
		if t.MongoURI == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvTenantMongoURI, EnvTenantEngine, TenantEngineMongo)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvTenantEngine, t.Engine)
	}
	return nil
}

type DeployConfig struct {
	Provider    string        `envconfig:"PROVISIONER_DEPLOY_PROVIDER" default:"noop"`
	BaseURL     string        `envconfig:"PROVISIONER_DEPLOY_BASE_URL"`
	APIToken    string        `envconfig:"PROVISIONER_DEPLOY_API_TOKEN"`
	Timeout     time.Duration `envconfig:"PROVISIONER_DEPLOY_TIMEOUT" default:"15s"`
	RootDomain  string        `envconfig:"PROVISIONER_DEPLOY_ROOT_DOMAIN" default:"stores.localhost"`
	RuntimeMode string        `envconfig:"PROVISIONER_DEPLOY_RUNTIME_MODE" default:"production"`
}

func (d DeployConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Provider)) {
	case DeployProviderNoop:
		return nil
	case DeployProviderHTTP:
		if d.BaseURL == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvDeployBaseURL, EnvDeployProvider, DeployProviderHTTP)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvDeployProvider, d.Provider)
	}
}

type DomainConfig struct {
	EdgeIPv4      string        `envconfig:"PROVISIONER_DOMAIN_EDGE_IPV4" default:"203.0.113.10"`
	ResolverAddr  string        `envconfig:"PROVISIONER_DOMAIN_RESOLVER_ADDR"`
	LookupTimeout time.Duration `envconfig:"PROVISIONER_DOMAIN_LOOKUP_TIMEOUT" default:"5s"`
	VerifyWindow  time.Duration `envconfig:"PROVISIONER_DOMAIN_VERIFY_WINDOW" default:"1m"`
	VerifyLimit   int           `envconfig:"PROVISIONER_DOMAIN_VERIFY_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"PROVISIONER_CRON_INTERVAL" default:"15m"`
	DomainBatchSize  int           `envconfig:"PROVISIONER_CRON_DOMAIN_BATCH_SIZE" default:"100"`
	RenewalBatchSize int           `envconfig:"PROVISIONER_CRON_RENEWAL_BATCH_SIZE" default:"100"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PROVISIONER_AUTO_MIGRATE" default:"false"`
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
