package config

import (
	"os"
	"strings"
)

const appEnvVar = "APP_ENV"

// Deployment environments recognised in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var envAliases = map[string]string{
	"dev":   EnvDevelopment,
	"local": EnvDevelopment,
	"stag":  EnvStaging,
	"stage": EnvStaging,
	"prod":  EnvProduction,
}

// envConfigPaths replaces DefaultConfigPath for environments that ship their
// own file.
var envConfigPaths = map[string]string{
	EnvStaging:    "config/config.staging.yml",
	EnvProduction: "config/config.production.yml",
}

// Environment returns the normalised APP_ENV value, development when unset.
func Environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvDevelopment
	}
	if canonical, ok := envAliases[env]; ok {
		return canonical
	}
	return env
}

// Strict reports whether env serves real users. Strict environments must
// rate limit the dashboard and pin the chart label timezone instead of
// inheriting the host's.
func Strict(env string) bool {
	return env == EnvProduction || env == EnvStaging
}

// ResolveConfigPath returns the file registered for the current environment
// when path is empty or the default and that file exists.
func ResolveConfigPath(path string) string {
	if path == "" {
		path = DefaultConfigPath
	}
	if path != DefaultConfigPath {
		return path
	}
	envPath, ok := envConfigPaths[Environment()]
	if !ok {
		return path
	}
	if _, err := os.Stat(envPath); err != nil {
		return path
	}
	return envPath
}
