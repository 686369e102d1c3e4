package cardlink

import (
	"fmt"

	cardlinkcommand "github.com/osmi-labs/cardlink/command"
	"github.com/osmi-labs/cardlink/core"
	cardlinkquery "github.com/osmi-labs/cardlink/query"
)

// PipelineService is the surface the facade needs from the service layer:
// webhook ingestion plus access to the retry and bonus loops.
type PipelineService interface {
	cardlinkcommand.IngestService
	Config() core.Config
	Dependencies() core.ServiceDependencies
	RetryScheduler() *core.RetryScheduler
	BonusReconciler() *core.BonusReconciler
}

type Commands struct {
	IngestCardEvent *cardlinkcommand.IngestCardEventCommand
	RunRetryPass    *cardlinkcommand.RunRetryPassCommand
	RunBonusPass    *cardlinkcommand.RunBonusPassCommand
}

type Queries struct {
	ListFrozenTasks *cardlinkquery.ListFrozenTasksQuery
	GetSubscriber   *cardlinkquery.GetSubscriberQuery
}

type Facade struct {
	service  PipelineService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	retryService     cardlinkcommand.RetryService
	bonusService     cardlinkcommand.BonusService
	frozenReader     cardlinkquery.FrozenTaskReader
	subscriberReader cardlinkquery.SubscriberReader
}

// WithRetryService overrides the retry pass runner used by the facade's
// RunRetryPass command.
func WithRetryService(service cardlinkcommand.RetryService) FacadeOption {
	return func(options *facadeOptions) {
		options.retryService = service
	}
}

// WithBonusService overrides the bonus pass runner used by the facade's
// RunBonusPass command.
func WithBonusService(service cardlinkcommand.BonusService) FacadeOption {
	return func(options *facadeOptions) {
		options.bonusService = service
	}
}

func WithFrozenTaskReader(reader cardlinkquery.FrozenTaskReader) FacadeOption {
	return func(options *facadeOptions) {
		options.frozenReader = reader
	}
}

func WithSubscriberReader(reader cardlinkquery.SubscriberReader) FacadeOption {
	return func(options *facadeOptions) {
		options.subscriberReader = reader
	}
}

func NewFacade(service PipelineService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("cardlink: pipeline service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	retry := cfg.retryService
	if retry == nil {
		retry = service.RetryScheduler()
	}
	bonus := cfg.bonusService
	if bonus == nil {
		bonus = service.BonusReconciler()
	}

	deps := service.Dependencies()
	frozenReader := cfg.frozenReader
	if frozenReader == nil {
		frozenReader = deps.TaskStore
	}
	subscriberReader := cfg.subscriberReader
	if subscriberReader == nil {
		subscriberReader = deps.SubscriberStore
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IngestCardEvent: cardlinkcommand.NewIngestCardEventCommand(service),
		RunRetryPass:    cardlinkcommand.NewRunRetryPassCommand(retry),
		RunBonusPass:    cardlinkcommand.NewRunBonusPassCommand(bonus),
	}
	facade.queries = Queries{
		ListFrozenTasks: cardlinkquery.NewListFrozenTasksQuery(frozenReader, service.Config().Retry.MaxAttempts),
		GetSubscriber:   cardlinkquery.NewGetSubscriberQuery(subscriberReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() PipelineService {
	if f == nil {
		return nil
	}
	return f.service
}
