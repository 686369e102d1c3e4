package core

import (
	"strings"
	"testing"
	"time"
)

func startupConfig() Config {
	cfg := DefaultConfig()
	cfg.Identity.URL = "https://identity.example.com/card"
	cfg.Identity.APIKey = "id-key"
	cfg.Directory.URL = "https://directory.example.com/subscribers"
	cfg.Directory.Username = "admin"
	cfg.Directory.APIKey = "dir-key"
	cfg.Directory.ListID = 3
	cfg.Bonus.URL = "https://bonus.example.com/grant"
	cfg.Bonus.APIKey = "bonus-key"
	cfg.Bonus.Sum = 200
	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.Name = "cardlink"
	cfg.Database.User = "cardlink"
	cfg.Database.Password = "secret"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Webhook.Addr != ":5001" {
		t.Fatalf("unexpected default addr %q", cfg.Webhook.Addr)
	}
	if cfg.Retry.Backoff != 5*time.Minute || cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Bonus.Interval != time.Hour || cfg.Bonus.Comment != "MAIL SUBSCRIBE" {
		t.Fatalf("unexpected bonus defaults: %+v", cfg.Bonus)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestConfigValidate_RejectsNonPositiveIntervals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.Backoff = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero backoff")
	}

	cfg = DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero max attempts")
	}

	cfg = DefaultConfig()
	cfg.Bonus.Interval = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative bonus interval")
	}
}

func TestConfigValidateStartup(t *testing.T) {
	cfg := startupConfig()
	if err := cfg.ValidateStartup(); err != nil {
		t.Fatalf("complete config must pass: %v", err)
	}

	cfg.Identity.APIKey = ""
	cfg.Database.Password = " "
	err := cfg.ValidateStartup()
	if err == nil {
		t.Fatalf("expected missing key error")
	}
	if !strings.Contains(err.Error(), "identity.api_key") || !strings.Contains(err.Error(), "database.password") {
		t.Fatalf("error must name every missing key, got %v", err)
	}
}

func TestConfigValidateStartup_RequiresListAndSum(t *testing.T) {
	cfg := startupConfig()
	cfg.Bonus.Sum = 0
	if err := cfg.ValidateStartup(); err == nil {
		t.Fatalf("expected error for zero bonus sum")
	}

	cfg = startupConfig()
	cfg.Directory.ListID = 0
	if err := cfg.ValidateStartup(); err == nil {
		t.Fatalf("expected error for missing list id")
	}
}

func TestDatabaseConfigDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", Name: "cardlink", User: "svc", Password: "pw"}
	dsn := cfg.DSN()
	for _, part := range []string{"host=db", "port=5432", "dbname=cardlink", "user=svc", "password=pw", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn %q missing %q", dsn, part)
		}
	}
}
