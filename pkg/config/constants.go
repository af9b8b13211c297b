package config

const EnvPrefix = "PROVISIONER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	TenantEnginePostgres = "postgres"
	TenantEngineMongo    = "mongo"

	DeployProviderNoop = "noop"
	DeployProviderHTTP = "http"
)

const (
	EnvAppEnv   = "PROVISIONER_APP_ENV"
	EnvPort     = "PROVISIONER_APP_PORT"
	EnvLogLevel = "PROVISIONER_LOG_LEVEL"

	EnvDBDSN  = "PROVISIONER_DB_DSN"
	EnvDBHost = "PROVISIONER_DB_HOST"
	EnvDBUser = "PROVISIONER_DB_USER"
	EnvDBName = "PROVISIONER_DB_NAME"

	EnvRedisURL = "PROVISIONER_REDIS_URL"

	EnvAdminAPIToken = "PROVISIONER_ADMIN_API_TOKEN"

	EnvTenantEngine   = "PROVISIONER_TENANT_ENGINE"
	EnvTenantAdminDSN = "PROVISIONER_TENANT_ADMIN_DSN"
	EnvTenantMongoURI = "PROVISIONER_TENANT_MONGO_URI"

	EnvDeployProvider = "PROVISIONER_DEPLOY_PROVIDER"
	EnvDeployBaseURL  = "PROVISIONER_DEPLOY_BASE_URL"

	EnvDomainEdgeIPv4 = "PROVISIONER_DOMAIN_EDGE_IPV4"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
