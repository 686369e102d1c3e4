package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/osmi-labs/cardlink/core"
)

// IngestService is the pipeline surface the ingest command drives.
type IngestService interface {
	Ingest(ctx context.Context, serial string, event string) error
}

// RetryService runs one replay pass over due tasks.
type RetryService interface {
	RunPass(ctx context.Context) (core.RetryStats, error)
}

// BonusService runs one bonus reconciliation pass.
type BonusService interface {
	RunPass(ctx context.Context) (core.BonusStats, error)
}

type IngestCardEventCommand struct {
	service IngestService
}

func NewIngestCardEventCommand(service IngestService) *IngestCardEventCommand {
	return &IngestCardEventCommand{service: service}
}

func (c *IngestCardEventCommand) Execute(ctx context.Context, msg IngestCardEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandInvalidInputError(err.Error())
	}
	return c.service.Ingest(ctx, msg.Serial, msg.Event)
}

type RunRetryPassCommand struct {
	service RetryService
}

func NewRunRetryPassCommand(service RetryService) *RunRetryPassCommand {
	return &RunRetryPassCommand{service: service}
}

func (c *RunRetryPassCommand) Execute(ctx context.Context, msg RunRetryPassMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry service is required")
	}
	stats, err := c.service.RunPass(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

type RunBonusPassCommand struct {
	service BonusService
}

func NewRunBonusPassCommand(service BonusService) *RunBonusPassCommand {
	return &RunBonusPassCommand{service: service}
}

func (c *RunBonusPassCommand) Execute(ctx context.Context, msg RunBonusPassMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bonus service is required")
	}
	stats, err := c.service.RunPass(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
