package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// StoreProvider exposes the persistence-backed stores a store factory
// builds. The sql package implements it; tests substitute stubs.
type StoreProvider interface {
	TaskStore() TaskStore
	SubscriberStore() SubscriberStore
	EventJournal() EventJournal
}

// RepositoryStoreFactory constructs a StoreProvider from an opaque
// persistence client (a bun-backed client in production).
type RepositoryStoreFactory interface {
	BuildStores(client any) (StoreProvider, error)
}

// Service wires the ingestion pipeline, the retry scheduler, and the bonus
// reconciler over a shared configuration and store set.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	taskStore       TaskStore
	subscriberStore SubscriberStore
	journal         EventJournal
	identity        IdentityResolver
	directory       DirectoryClient
	bonus           BonusClient
	pipeline        *Pipeline
	scheduler       *RetryScheduler
	reconciler      *BonusReconciler
}

// ServiceDependencies reports the resolved collaborators for callers that
// compose additional surfaces (transport handlers, command wiring).
type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	TaskStore       TaskStore
	SubscriberStore SubscriberStore
	EventJournal    EventJournal
	Identity        IdentityResolver
	Directory       DirectoryClient
	Bonus           BonusClient
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("cardlink", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("cardlink"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if err := finalConfig.Validate(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.taskStore == nil || builder.subscriberStore == nil || builder.journal == nil) && builder.storeFactory != nil {
		if factory, ok := builder.storeFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := factory.BuildStores(builder.persistence)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				if builder.taskStore == nil {
					builder.taskStore = stores.TaskStore()
				}
				if builder.subscriberStore == nil {
					builder.subscriberStore = stores.SubscriberStore()
				}
				if builder.journal == nil {
					builder.journal = stores.EventJournal()
				}
			}
		} else if stores, ok := builder.storeFactory.(StoreProvider); ok {
			if builder.taskStore == nil {
				builder.taskStore = stores.TaskStore()
			}
			if builder.subscriberStore == nil {
				builder.subscriberStore = stores.SubscriberStore()
			}
			if builder.journal == nil {
				builder.journal = stores.EventJournal()
			}
		}
	}

	pipeline, err := NewPipeline(
		finalConfig,
		builder.identity,
		builder.directory,
		builder.taskStore,
		builder.subscriberStore,
		builder.journal,
		logger,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.now != nil {
		pipeline.now = builder.now
	}

	scheduler, err := NewRetryScheduler(finalConfig, builder.taskStore, pipeline, logger)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.now != nil {
		scheduler.now = builder.now
	}

	reconciler, err := NewBonusReconciler(finalConfig, builder.directory, builder.bonus, builder.subscriberStore, logger)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		taskStore:       builder.taskStore,
		subscriberStore: builder.subscriberStore,
		journal:         builder.journal,
		identity:        builder.identity,
		directory:       builder.directory,
		bonus:           builder.bonus,
		pipeline:        pipeline,
		scheduler:       scheduler,
		reconciler:      reconciler,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) Pipeline() *Pipeline {
	if s == nil {
		return nil
	}
	return s.pipeline
}

func (s *Service) RetryScheduler() *RetryScheduler {
	if s == nil {
		return nil
	}
	return s.scheduler
}

func (s *Service) BonusReconciler() *BonusReconciler {
	if s == nil {
		return nil
	}
	return s.reconciler
}

// Ingest is the transport-facing entry point for inbound card events.
func (s *Service) Ingest(ctx context.Context, serial string, event string) error {
	if s == nil {
		return NewPersistenceError("core: service is not configured")
	}
	return s.pipeline.Ingest(ctx, serial, event)
}

// RunBackground starts the retry scheduler and the bonus reconciler and
// blocks until the context is canceled and both loops have drained.
func (s *Service) RunBackground(ctx context.Context) error {
	if s == nil {
		return NewPersistenceError("core: service is not configured")
	}
	go func() {
		_ = s.scheduler.Start(ctx)
	}()
	go func() {
		_ = s.reconciler.Start(ctx)
	}()
	<-ctx.Done()
	wait := func(done <-chan struct{}) {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
	wait(s.scheduler.Stopped())
	wait(s.reconciler.Stopped())
	return ctx.Err()
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		TaskStore:       s.taskStore,
		SubscriberStore: s.subscriberStore,
		EventJournal:    s.journal,
		Identity:        s.identity,
		Directory:       s.directory,
		Bonus:           s.bonus,
	}
}
