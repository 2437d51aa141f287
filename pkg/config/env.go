package config

const (
	EnvPrefix = "RAFFLEPOT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "RAFFLEPOT_APP_ENV"
	EnvPort      = "RAFFLEPOT_APP_PORT"
	EnvRedisURL  = "RAFFLEPOT_REDIS_URL"
	EnvJWTSecret = "RAFFLEPOT_JWT_SECRET"
	EnvJWTIssuer = "RAFFLEPOT_JWT_ISSUER"

	EnvDBDSN  = "RAFFLEPOT_DB_DSN"
	EnvDBHost = "RAFFLEPOT_DB_HOST"
	EnvDBUser = "RAFFLEPOT_DB_USER"
	EnvDBName = "RAFFLEPOT_DB_NAME"

	EnvPointsPerCurrencyUnit = "RAFFLEPOT_POINTS_PER_CURRENCY_UNIT"
	EnvWithdrawalMin         = "RAFFLEPOT_WITHDRAWAL_MIN"
	EnvPubSubDrawTopic       = "RAFFLEPOT_PUBSUB_DRAW_TOPIC"
	EnvPaystackSecretKey     = "RAFFLEPOT_PAYSTACK_SECRET_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
