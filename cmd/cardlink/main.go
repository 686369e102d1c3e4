package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"

	cardlink "github.com/osmi-labs/cardlink"
	"github.com/osmi-labs/cardlink/adapters/gocommand"
	"github.com/osmi-labs/cardlink/adapters/gologger"
	"github.com/osmi-labs/cardlink/bonus"
	"github.com/osmi-labs/cardlink/core"
	"github.com/osmi-labs/cardlink/directory"
	"github.com/osmi-labs/cardlink/identity"
	"github.com/osmi-labs/cardlink/migrations"
	sqlstore "github.com/osmi-labs/cardlink/store/sql"
	"github.com/osmi-labs/cardlink/webhooks"
)

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool {
	return false
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "cardlink"
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configProvider := core.NewCfgxConfigProvider(core.EnvRawConfigLoader{})
	cfg, err := configProvider.Load(ctx, core.DefaultConfig())
	if err != nil {
		log.Fatalf("cardlink: load configuration: %v", err)
	}
	if err := cfg.ValidateStartup(); err != nil {
		log.Fatalf("cardlink: %v", err)
	}

	dsn := cfg.Database.DSN()
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("cardlink: open database: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	client, err := persistence.New(persistenceConfig{driver: "postgres", server: dsn}, sqlDB, pgdialect.New())
	if err != nil {
		log.Fatalf("cardlink: persistence client: %v", err)
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrations.DialectPostgres {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrations.DialectPostgres))
	if err != nil {
		log.Fatalf("cardlink: register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		log.Fatalf("cardlink: migrate: %v", err)
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		log.Fatalf("cardlink: store factory: %v", err)
	}

	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		log.Fatalf("cardlink: subscriber cache: %v", err)
	}
	cachedSubscribers, err := sqlstore.NewCachedSubscriberStore(factory.SubscriberStore(), cacheService)
	if err != nil {
		log.Fatalf("cardlink: cached subscriber store: %v", err)
	}

	resolver, err := identity.NewResolver(identity.Config{
		BaseURL: cfg.Identity.URL,
		APIKey:  cfg.Identity.APIKey,
	})
	if err != nil {
		log.Fatalf("cardlink: identity resolver: %v", err)
	}

	directoryClient, err := directory.NewClient(directory.Config{
		BaseURL:  cfg.Directory.URL,
		Username: cfg.Directory.Username,
		APIKey:   cfg.Directory.APIKey,
	})
	if err != nil {
		log.Fatalf("cardlink: directory client: %v", err)
	}

	bonusClient, err := bonus.NewClient(bonus.Config{
		BaseURL: cfg.Bonus.URL,
		APIKey:  cfg.Bonus.APIKey,
	})
	if err != nil {
		log.Fatalf("cardlink: bonus client: %v", err)
	}

	loggerProvider, logger := gologger.Resolve(gologger.DefaultName, nil, nil)

	service, err := core.NewService(cfg,
		core.WithConfigProvider(configProvider),
		core.WithLoggerProvider(loggerProvider),
		core.WithLogger(logger),
		core.WithStoreFactory(factory),
		core.WithSubscriberStore(cachedSubscribers),
		core.WithIdentityResolver(resolver),
		core.WithDirectoryClient(directoryClient),
		core.WithBonusClient(bonusClient),
	)
	if err != nil {
		log.Fatalf("cardlink: build service: %v", err)
	}

	facade, err := cardlink.NewFacade(service)
	if err != nil {
		log.Fatalf("cardlink: build facade: %v", err)
	}

	registry := gocommand.NewRegistryAdapter(nil)
	subscriptions, err := gocommand.RegisterCardlinkCommands(registry,
		facade.Service(), service.RetryScheduler(), service.BonusReconciler())
	if err != nil {
		log.Fatalf("cardlink: register commands: %v", err)
	}
	frozenSub, err := gocommand.RegisterAndSubscribeQuery(registry, facade.Queries().ListFrozenTasks)
	if err != nil {
		log.Fatalf("cardlink: register frozen-task query: %v", err)
	}
	subscriptions = append(subscriptions, frozenSub)
	subscriberSub, err := gocommand.RegisterAndSubscribeQuery(registry, facade.Queries().GetSubscriber)
	if err != nil {
		log.Fatalf("cardlink: register subscriber query: %v", err)
	}
	subscriptions = append(subscriptions, subscriberSub)
	defer func() {
		for _, sub := range subscriptions {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
	}()

	processor, err := webhooks.NewProcessor(facade.Service(), service.Dependencies().EventJournal, service.Logger())
	if err != nil {
		log.Fatalf("cardlink: webhook processor: %v", err)
	}
	server, err := webhooks.NewServer(webhooks.ServerConfig{
		Addr:     cfg.Webhook.Addr,
		Username: cfg.Webhook.Username,
		Password: cfg.Webhook.Password,
	}, processor, service.Logger())
	if err != nil {
		log.Fatalf("cardlink: webhook server: %v", err)
	}

	background := make(chan struct{})
	go func() {
		defer close(background)
		_ = service.RunBackground(ctx)
	}()

	if err := server.Start(ctx); err != nil {
		stop()
		<-background
		log.Fatalf("cardlink: webhook server: %v", err)
	}

	<-background
	os.Exit(0)
}
