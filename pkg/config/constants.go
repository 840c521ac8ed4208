package config

// EnvPrefix is the envconfig prefix. Field tags carry the full variable names.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"
	EnvCORS     = "STOREFRONT_CORS_ORIGINS"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic       = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotificationTopic = "STOREFRONT_PUBSUB_NOTIFICATION_TOPIC"

	EnvPaymobAPIKey        = "STOREFRONT_PAYMOB_API_KEY"
	EnvPaymobIntegrationID = "STOREFRONT_PAYMOB_INTEGRATION_ID"
	EnvPaymobIframeID      = "STOREFRONT_PAYMOB_IFRAME_ID"
	EnvPaymobHMACSecret    = "STOREFRONT_PAYMOB_HMAC_SECRET"
	EnvPaymobTimeout       = "STOREFRONT_PAYMOB_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
