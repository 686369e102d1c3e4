package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type WebhookConfig struct {
	Addr     string `koanf:"addr" mapstructure:"addr"`
	Username string `koanf:"username" mapstructure:"username"`
	Password string `koanf:"password" mapstructure:"password"`
}

type IdentityConfig struct {
	URL    string `koanf:"url" mapstructure:"url"`
	APIKey string `koanf:"api_key" mapstructure:"api_key"`
}

type DirectoryConfig struct {
	URL      string `koanf:"url" mapstructure:"url"`
	Username string `koanf:"username" mapstructure:"username"`
	APIKey   string `koanf:"api_key" mapstructure:"api_key"`
	ListID   int    `koanf:"list_id" mapstructure:"list_id"`
}

type BonusConfig struct {
	URL      string        `koanf:"url" mapstructure:"url"`
	APIKey   string        `koanf:"api_key" mapstructure:"api_key"`
	Sum      float64       `koanf:"sum" mapstructure:"sum"`
	Comment  string        `koanf:"comment" mapstructure:"comment"`
	Interval time.Duration `koanf:"interval" mapstructure:"interval"`
}

type RetryConfig struct {
	// Backoff is the minimum wait between attempts of the same task.
	Backoff time.Duration `koanf:"backoff" mapstructure:"backoff"`
	// PollInterval is how often the scheduler scans for due tasks. The
	// source deployment coupled this to Backoff; they are deliberately
	// separate knobs here.
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	MaxAttempts  int           `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type DatabaseConfig struct {
	Host     string `koanf:"host" mapstructure:"host"`
	Port     string `koanf:"port" mapstructure:"port"`
	Name     string `koanf:"name" mapstructure:"name"`
	User     string `koanf:"user" mapstructure:"user"`
	Password string `koanf:"password" mapstructure:"password"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.Name, c.User, c.Password,
	)
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig   `koanf:"webhook" mapstructure:"webhook"`
	Identity    IdentityConfig  `koanf:"identity" mapstructure:"identity"`
	Directory   DirectoryConfig `koanf:"directory" mapstructure:"directory"`
	Bonus       BonusConfig     `koanf:"bonus" mapstructure:"bonus"`
	Retry       RetryConfig     `koanf:"retry" mapstructure:"retry"`
	Database    DatabaseConfig  `koanf:"database" mapstructure:"database"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "cardlink",
		Webhook: WebhookConfig{
			Addr: ":5001",
		},
		Bonus: BonusConfig{
			Comment:  "MAIL SUBSCRIBE",
			Interval: time.Hour,
		},
		Retry: RetryConfig{
			Backoff:      5 * time.Minute,
			PollInterval: 5 * time.Minute,
			MaxAttempts:  3,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.Backoff <= 0 {
		return fmt.Errorf("core: retry backoff must be positive")
	}
	if c.Retry.PollInterval <= 0 {
		return fmt.Errorf("core: retry poll_interval must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("core: retry max_attempts must be positive")
	}
	if c.Bonus.Interval <= 0 {
		return fmt.Errorf("core: bonus interval must be positive")
	}
	return nil
}

// ValidateStartup is the fail-fast check for a deployed process: every
// upstream endpoint, credential, and database parameter must be present.
func (c Config) ValidateStartup() error {
	if err := c.Validate(); err != nil {
		return err
	}
	required := map[string]string{
		"identity.url":       c.Identity.URL,
		"identity.api_key":   c.Identity.APIKey,
		"directory.url":      c.Directory.URL,
		"directory.username": c.Directory.Username,
		"directory.api_key":  c.Directory.APIKey,
		"bonus.url":          c.Bonus.URL,
		"bonus.api_key":      c.Bonus.APIKey,
		"database.host":      c.Database.Host,
		"database.port":      c.Database.Port,
		"database.name":      c.Database.Name,
		"database.user":      c.Database.User,
		"database.password":  c.Database.Password,
	}
	missing := make([]string, 0, len(required))
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("core: missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Bonus.Sum <= 0 {
		return fmt.Errorf("core: bonus sum must be positive")
	}
	if c.Directory.ListID <= 0 {
		return fmt.Errorf("core: directory list_id is required")
	}
	return nil
}
