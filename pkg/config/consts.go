package config

const (
	// EnvPrefix is the envconfig prefix; variables are fully qualified in
	// struct tags so this stays empty.
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv    = "KARTMITRA_APP_ENV"
	EnvPort      = "KARTMITRA_APP_PORT"
	EnvRedisURL  = "KARTMITRA_REDIS_URL"
	EnvJWTSecret = "KARTMITRA_JWT_SECRET"
	EnvJWTIssuer = "KARTMITRA_JWT_ISSUER"

	EnvDBDSN  = "KARTMITRA_DB_DSN"
	EnvDBHost = "KARTMITRA_DB_HOST"
	EnvDBUser = "KARTMITRA_DB_USER"
	EnvDBName = "KARTMITRA_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
