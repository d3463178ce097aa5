package config

type Config interface {
	EnvConfig
	CorsConfig
	OIDCConfig
	DatabaseConfig
	GravatarConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetConfigFolder() string
	GetFrontendOrigin() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// OIDCConfig exposes the server-side OIDC settings loaded from
// config/oidc.json. The file is read once and cached for the process.
type OIDCConfig interface {
	GetOIDCSettings() (*OIDCSettings, error)
}

// DatabaseConfig exposes the relational store settings loaded from
// config/database.json.
type DatabaseConfig interface {
	GetDatabaseSettings() (*DatabaseSettings, error)
}

// GravatarConfig exposes the avatar-provider API key and logging toggle.
type GravatarConfig interface {
	GetGravatarAPIKey() (string, error)
	GetGravatarLoggingEnabled() bool
}

type mainConfig struct {
	EnvVars
	Cors
	*OIDCFile
	*DatabaseFile
	*GravatarFile
}

func New() Config {
	env := EnvVars{}
	folder := env.GetConfigFolder()
	return mainConfig{
		EnvVars:      env,
		Cors:         Cors{env: env},
		OIDCFile:     NewOIDCFile(folder),
		DatabaseFile: NewDatabaseFile(folder),
		GravatarFile: NewGravatarFile(folder),
	}
}
