package core

import (
	"context"
	"testing"
	"time"
)

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestEnvRawConfigLoader_ParsesTypedValues(t *testing.T) {
	loader := EnvRawConfigLoader{Lookup: envLookup(map[string]string{
		"HTTP_ADDR":          ":9000",
		"IDENTITY_API_URL":   "https://identity.example.com",
		"LIST_ID":            "7",
		"BONUS_SUM":          "150.5",
		"BONUS_INTERVAL":     "30m",
		"RETRY_INTERVAL":     "2m",
		"RETRY_MAX_ATTEMPTS": "5",
	})}

	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	webhook, _ := raw["webhook"].(map[string]any)
	if webhook["addr"] != ":9000" {
		t.Fatalf("unexpected webhook section: %v", raw["webhook"])
	}
	directory, _ := raw["directory"].(map[string]any)
	if directory["list_id"] != 7 {
		t.Fatalf("list_id must be parsed to int, got %T %v", directory["list_id"], directory["list_id"])
	}
	bonus, _ := raw["bonus"].(map[string]any)
	if bonus["sum"] != 150.5 {
		t.Fatalf("sum must be parsed to float, got %v", bonus["sum"])
	}
	if bonus["interval"] != 30*time.Minute {
		t.Fatalf("interval must be parsed to duration, got %v", bonus["interval"])
	}
	retry, _ := raw["retry"].(map[string]any)
	if retry["backoff"] != 2*time.Minute || retry["max_attempts"] != 5 {
		t.Fatalf("unexpected retry section: %v", retry)
	}
	if _, ok := raw["database"]; ok {
		t.Fatalf("unset sections must be absent, got %v", raw["database"])
	}
}

func TestEnvRawConfigLoader_RejectsMalformedValues(t *testing.T) {
	loader := EnvRawConfigLoader{Lookup: envLookup(map[string]string{
		"BONUS_INTERVAL": "soon",
	})}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected parse error for malformed duration")
	}

	loader = EnvRawConfigLoader{Lookup: envLookup(map[string]string{
		"LIST_ID": "first",
	})}
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected parse error for malformed int")
	}
}

func TestGoOptionsResolver_LayerPrecedence(t *testing.T) {
	defaults := DefaultConfig()

	loaded := Config{}
	loaded.Webhook.Addr = ":6000"
	loaded.Retry.MaxAttempts = 4

	runtime := Config{}
	runtime.Retry.MaxAttempts = 7

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Webhook.Addr != ":6000" {
		t.Fatalf("loaded layer must override defaults, got %q", resolved.Webhook.Addr)
	}
	if resolved.Retry.MaxAttempts != 7 {
		t.Fatalf("runtime layer must win, got %d", resolved.Retry.MaxAttempts)
	}
	if resolved.Bonus.Comment != "MAIL SUBSCRIBE" {
		t.Fatalf("untouched defaults must survive, got %q", resolved.Bonus.Comment)
	}
	if resolved.Retry.Backoff != 5*time.Minute {
		t.Fatalf("untouched retry defaults must survive, got %v", resolved.Retry.Backoff)
	}
}

func TestCfgxConfigProvider_LoadsOverDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(EnvRawConfigLoader{Lookup: envLookup(map[string]string{
		"HTTP_ADDR": ":7070",
		"DB_HOST":   "pg.internal",
	})})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Webhook.Addr != ":7070" {
		t.Fatalf("expected env override, got %q", cfg.Webhook.Addr)
	}
	if cfg.Database.Host != "pg.internal" {
		t.Fatalf("expected env database host, got %q", cfg.Database.Host)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("defaults must fill untouched fields, got %d", cfg.Retry.MaxAttempts)
	}
}
