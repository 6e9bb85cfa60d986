package dashboard

import (
	"testing"

	"fundingboard/config"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:8080",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:8080",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:8080",
		"*:8080":                         "0.0.0.0:8080",
		"http://13.200.112.203:8080":     "13.200.112.203:8080",
		"https://13.200.112.203":         "13.200.112.203:8080",
		"http://:7070":                   "0.0.0.0:7070",
		"tcp://localhost:5050":           "localhost:5050",
		"https://dashboard.example.com/": "dashboard.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	env := newTestEnv(t, config.DashboardConfig{Address: ":9000"}, false)
	if got := env.srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
}

func TestNewServerRequiresStoreAndSessions(t *testing.T) {
	if _, err := NewServer(config.DashboardConfig{}, Dependencies{}, quietLogger()); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestNewServerRejectsUnknownTimezone(t *testing.T) {
	env := newTestEnv(t, config.DashboardConfig{}, false)
	_, err := NewServer(config.DashboardConfig{LabelTimezone: "Mars/Olympus"}, Dependencies{
		Store:    env.store,
		Sessions: env.srv.sessions,
	}, quietLogger())
	if err == nil {
		t.Fatal("expected error for unknown label timezone")
	}
}
