package config

const EnvPrefix = "MARKETPLACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StripeEnvTest = "test"
	StripeEnvLive = "live"
)

const (
	EnvAppEnv           = "MARKETPLACE_APP_ENV"
	EnvPort             = "MARKETPLACE_APP_PORT"
	EnvDBDSN            = "MARKETPLACE_DB_DSN"
	EnvDBHost           = "MARKETPLACE_DB_HOST"
	EnvDBUser           = "MARKETPLACE_DB_USER"
	EnvDBName           = "MARKETPLACE_DB_NAME"
	EnvRedisURL         = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret        = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer        = "MARKETPLACE_JWT_ISSUER"
	EnvStripeEnv        = "MARKETPLACE_STRIPE_ENV"
	EnvStripeSessionTTL = "MARKETPLACE_STRIPE_SESSION_TTL"
	EnvShippingCountry  = "MARKETPLACE_STRIPE_SHIPPING_COUNTRIES"
	EnvUseSQLite        = "MARKETPLACE_USE_SQLITE"
	EnvOrderPendingTTL  = "MARKETPLACE_ORDER_PENDING_TTL"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
