package query

import (
	"context"
	"strings"

	"github.com/osmi-labs/cardlink/core"
)

// FrozenTaskReader lists retry tasks that hit their attempt cap and will
// never be rescheduled.
type FrozenTaskReader interface {
	ListFrozen(ctx context.Context, maxAttempts int) ([]core.Task, error)
}

type SubscriberReader interface {
	Get(ctx context.Context, uuid string) (core.Subscriber, error)
}

type ListFrozenTasksQuery struct {
	reader      FrozenTaskReader
	maxAttempts int
}

// NewListFrozenTasksQuery builds the frozen-task listing over the given
// reader. defaultMaxAttempts is the configured retry budget used when the
// message does not carry one.
func NewListFrozenTasksQuery(reader FrozenTaskReader, defaultMaxAttempts int) *ListFrozenTasksQuery {
	return &ListFrozenTasksQuery{reader: reader, maxAttempts: defaultMaxAttempts}
}

func (q *ListFrozenTasksQuery) Query(ctx context.Context, msg ListFrozenTasksMessage) ([]core.Task, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: frozen task reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, queryWrapValidation(err, "query: invalid frozen task listing")
	}
	maxAttempts := msg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = q.maxAttempts
	}
	if maxAttempts <= 0 {
		return nil, queryInvalidInputError("query: max_attempts is required")
	}
	return q.reader.ListFrozen(ctx, maxAttempts)
}

type GetSubscriberQuery struct {
	reader SubscriberReader
}

func NewGetSubscriberQuery(reader SubscriberReader) *GetSubscriberQuery {
	return &GetSubscriberQuery{reader: reader}
}

func (q *GetSubscriberQuery) Query(ctx context.Context, msg GetSubscriberMessage) (core.Subscriber, error) {
	if q == nil || q.reader == nil {
		return core.Subscriber{}, queryDependencyError("query: subscriber reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Subscriber{}, queryWrapValidation(err, "query: invalid subscriber lookup")
	}
	return q.reader.Get(ctx, strings.TrimSpace(msg.UUID))
}
