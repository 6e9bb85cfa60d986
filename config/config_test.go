package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTempConfig creates a configuration file with the given content and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

const minimalConfig = `app:
  name: "TestBoard"
  version: "1.0"
sources:
  snapshot_uri: "data/funding_snapshot.json"
  history_uri: "s3://funding-data/hourly/history.parquet"
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SNAPSHOT_URI", "")
	t.Setenv("HISTORY_URI", "")

	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestBoard" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Sources.FetchTimeout != 20*time.Second {
		t.Errorf("unexpected default fetch timeout: %s", cfg.Sources.FetchTimeout)
	}
	if cfg.Schedule.ReloadSpec != "0 5 * * * *" {
		t.Errorf("unexpected default reload spec: %s", cfg.Schedule.ReloadSpec)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("unexpected default cache backend: %s", cfg.Cache.Backend)
	}
	if cfg.Generator.RetentionDays != 5 {
		t.Errorf("unexpected retention days: %d", cfg.Generator.RetentionDays)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("HISTORY_URI", "https://example.com/history.csv")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("SNAPSHOT_URI", "")

	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sources.HistoryURI != "https://example.com/history.csv" {
		t.Errorf("history uri not overridden: %s", cfg.Sources.HistoryURI)
	}
	if cfg.Sources.S3.Region != "eu-west-1" {
		t.Errorf("region not overridden: %s", cfg.Sources.S3.Region)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SNAPSHOT_URI", "")
	t.Setenv("HISTORY_URI", "")

	cases := map[string]string{
		"missing history": `app: {name: x}
sources: {snapshot_uri: a.json}
`,
		"bad format": minimalConfig + "  history_format: xml\n",
		"bad bucket": `app: {name: x}
sources: {snapshot_uri: a.json, history_uri: "s3://Bad_Bucket/key"}
`,
		"bad cron":     minimalConfig + "schedule:\n  reload_spec: \"5 * * * *\"\n",
		"bad cache":    minimalConfig + "cache:\n  backend: memcached\n",
		"bad timezone": minimalConfig + "dashboard:\n  label_timezone: Mars/Olympus\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeTempConfig(t, content)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if got := ResolveConfigPath("custom.yml"); got != "custom.yml" {
		t.Errorf("explicit path replaced: %s", got)
	}
	// no production file in the test working directory
	if got := ResolveConfigPath(""); got != DefaultConfigPath {
		t.Errorf("missing environment file should fall back: %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := ResolveConfigPath(""); got != DefaultConfigPath {
		t.Errorf("unexpected default path: %s", got)
	}
}

func TestEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"":        EnvDevelopment,
		"stag":    EnvStaging,
		" PROD ":  EnvProduction,
		"preview": "preview",
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		if got := Environment(); got != want {
			t.Errorf("APP_ENV=%q: got %s, want %s", in, got, want)
		}
	}
	if !Strict(EnvStaging) || !Strict(EnvProduction) || Strict(EnvDevelopment) {
		t.Errorf("unexpected strictness")
	}
}

func TestLoadConfigStrictEnvironment(t *testing.T) {
	t.Setenv("SNAPSHOT_URI", "")
	t.Setenv("HISTORY_URI", "")
	t.Setenv("APP_ENV", "production")

	if _, err := LoadConfig(writeTempConfig(t, minimalConfig)); err == nil {
		t.Fatalf("expected host timezone to be rejected in production")
	}

	pinned := minimalConfig + "dashboard:\n  label_timezone: UTC\n"
	cfg, err := LoadConfig(writeTempConfig(t, pinned))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Environment != EnvProduction {
		t.Errorf("unexpected environment: %s", cfg.Environment)
	}

	unlimited := pinned + "  rate_limit:\n    requests_per_second: 0\n"
	if _, err := LoadConfig(writeTempConfig(t, unlimited)); err == nil {
		t.Fatalf("expected disabled rate limit to be rejected in production")
	}

	t.Setenv("APP_ENV", "development")
	if _, err := LoadConfig(writeTempConfig(t, unlimited)); err != nil {
		t.Fatalf("development should accept the same file: %v", err)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
