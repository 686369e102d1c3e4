package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/osmi-labs/cardlink/core"
)

var (
	_ gocmd.Querier[ListFrozenTasksMessage, []core.Task]   = (*ListFrozenTasksQuery)(nil)
	_ gocmd.Querier[GetSubscriberMessage, core.Subscriber] = (*GetSubscriberQuery)(nil)
)
