package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	persistence     any
	storeFactory    any
	taskStore       TaskStore
	subscriberStore SubscriberStore
	journal         EventJournal
	identity        IdentityResolver
	directory       DirectoryClient
	bonus           BonusClient
	now             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistence = client
	}
}

func WithStoreFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.storeFactory = factory
	}
}

func WithTaskStore(store TaskStore) Option {
	return func(b *serviceBuilder) {
		b.taskStore = store
	}
}

func WithSubscriberStore(store SubscriberStore) Option {
	return func(b *serviceBuilder) {
		b.subscriberStore = store
	}
}

func WithEventJournal(journal EventJournal) Option {
	return func(b *serviceBuilder) {
		b.journal = journal
	}
}

func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(b *serviceBuilder) {
		b.identity = resolver
	}
}

func WithDirectoryClient(client DirectoryClient) Option {
	return func(b *serviceBuilder) {
		b.directory = client
	}
}

func WithBonusClient(client BonusClient) Option {
	return func(b *serviceBuilder) {
		b.bonus = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(cfg Config) serviceBuilder {
	return serviceBuilder{
		runtimeConfig: cfg,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return cardlinkErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnvRawConfigLoader reads the deployment's environment surface into the
// raw config shape. Duration and numeric variables are parsed here so the
// layered resolver only ever sees typed values.
type EnvRawConfigLoader struct {
	Lookup func(key string) (string, bool)
}

func (l EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	raw := map[string]any{}
	setString := func(section string, key string, env string) error {
		value, ok := lookup(env)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		ensureSection(raw, section)[key] = strings.TrimSpace(value)
		return nil
	}
	setDuration := func(section string, key string, env string) error {
		value, ok := lookup(env)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("core: parse %s: %w", env, err)
		}
		ensureSection(raw, section)[key] = parsed
		return nil
	}
	setInt := func(section string, key string, env string) error {
		value, ok := lookup(env)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("core: parse %s: %w", env, err)
		}
		ensureSection(raw, section)[key] = parsed
		return nil
	}
	setFloat := func(section string, key string, env string) error {
		value, ok := lookup(env)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("core: parse %s: %w", env, err)
		}
		ensureSection(raw, section)[key] = parsed
		return nil
	}

	steps := []func() error{
		func() error { return setString("webhook", "addr", "HTTP_ADDR") },
		func() error { return setString("webhook", "username", "WEBHOOK_USERNAME") },
		func() error { return setString("webhook", "password", "WEBHOOK_PASSWORD") },
		func() error { return setString("identity", "url", "IDENTITY_API_URL") },
		func() error { return setString("identity", "api_key", "IDENTITY_API_KEY") },
		func() error { return setString("directory", "url", "DIRECTORY_API_URL") },
		func() error { return setString("directory", "username", "DIRECTORY_USERNAME") },
		func() error { return setString("directory", "api_key", "DIRECTORY_API_KEY") },
		func() error { return setInt("directory", "list_id", "LIST_ID") },
		func() error { return setString("bonus", "url", "BONUS_API_URL") },
		func() error { return setString("bonus", "api_key", "BONUS_API_KEY") },
		func() error { return setFloat("bonus", "sum", "BONUS_SUM") },
		func() error { return setString("bonus", "comment", "BONUS_COMMENT") },
		func() error { return setDuration("bonus", "interval", "BONUS_INTERVAL") },
		func() error { return setDuration("retry", "backoff", "RETRY_INTERVAL") },
		func() error { return setDuration("retry", "poll_interval", "POLL_INTERVAL") },
		func() error { return setInt("retry", "max_attempts", "RETRY_MAX_ATTEMPTS") },
		func() error { return setString("database", "host", "DB_HOST") },
		func() error { return setString("database", "port", "DB_PORT") },
		func() error { return setString("database", "name", "DB_NAME") },
		func() error { return setString("database", "user", "DB_USER") },
		func() error { return setString("database", "password", "DB_PASSWORD") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func ensureSection(raw map[string]any, section string) map[string]any {
	if existing, ok := raw[section].(map[string]any); ok {
		return existing
	}
	created := map[string]any{}
	raw[section] = created
	return created
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	webhook := map[string]any{}
	putString(webhook, "addr", cfg.Webhook.Addr, includeZero)
	putString(webhook, "username", cfg.Webhook.Username, includeZero)
	putString(webhook, "password", cfg.Webhook.Password, includeZero)
	putSection(layer, "webhook", webhook)

	identity := map[string]any{}
	putString(identity, "url", cfg.Identity.URL, includeZero)
	putString(identity, "api_key", cfg.Identity.APIKey, includeZero)
	putSection(layer, "identity", identity)

	directory := map[string]any{}
	putString(directory, "url", cfg.Directory.URL, includeZero)
	putString(directory, "username", cfg.Directory.Username, includeZero)
	putString(directory, "api_key", cfg.Directory.APIKey, includeZero)
	if includeZero || cfg.Directory.ListID != 0 {
		directory["list_id"] = cfg.Directory.ListID
	}
	putSection(layer, "directory", directory)

	bonus := map[string]any{}
	putString(bonus, "url", cfg.Bonus.URL, includeZero)
	putString(bonus, "api_key", cfg.Bonus.APIKey, includeZero)
	putString(bonus, "comment", cfg.Bonus.Comment, includeZero)
	if includeZero || cfg.Bonus.Sum != 0 {
		bonus["sum"] = cfg.Bonus.Sum
	}
	if includeZero || cfg.Bonus.Interval != 0 {
		bonus["interval"] = cfg.Bonus.Interval
	}
	putSection(layer, "bonus", bonus)

	retry := map[string]any{}
	if includeZero || cfg.Retry.Backoff != 0 {
		retry["backoff"] = cfg.Retry.Backoff
	}
	if includeZero || cfg.Retry.PollInterval != 0 {
		retry["poll_interval"] = cfg.Retry.PollInterval
	}
	if includeZero || cfg.Retry.MaxAttempts != 0 {
		retry["max_attempts"] = cfg.Retry.MaxAttempts
	}
	putSection(layer, "retry", retry)

	database := map[string]any{}
	putString(database, "host", cfg.Database.Host, includeZero)
	putString(database, "port", cfg.Database.Port, includeZero)
	putString(database, "name", cfg.Database.Name, includeZero)
	putString(database, "user", cfg.Database.User, includeZero)
	putString(database, "password", cfg.Database.Password, includeZero)
	putSection(layer, "database", database)

	return layer
}

func putString(section map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
