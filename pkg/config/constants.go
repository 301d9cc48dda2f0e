package config

// EnvPrefix is the envconfig prefix; individual fields carry full names so
// this stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "DECODE_DB_DSN"
	EnvDBHost = "DECODE_DB_HOST"
	EnvDBUser = "DECODE_DB_USER"
	EnvDBName = "DECODE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
