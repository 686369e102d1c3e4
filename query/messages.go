package query

import (
	"fmt"
	"strings"
)

const (
	TypeListFrozenTasks = "cardlink.query.tasks.frozen.list"
	TypeGetSubscriber   = "cardlink.query.subscriber.get"
)

// ListFrozenTasksMessage requests every retry task that has exhausted its
// attempt budget. MaxAttempts of zero means "use the configured budget".
type ListFrozenTasksMessage struct {
	MaxAttempts int
}

func (ListFrozenTasksMessage) Type() string { return TypeListFrozenTasks }

func (m ListFrozenTasksMessage) Validate() error {
	if m.MaxAttempts < 0 {
		return fmt.Errorf("query: max_attempts must be >= 0")
	}
	return nil
}

type GetSubscriberMessage struct {
	UUID string
}

func (GetSubscriberMessage) Type() string { return TypeGetSubscriber }

func (m GetSubscriberMessage) Validate() error {
	if strings.TrimSpace(m.UUID) == "" {
		return fmt.Errorf("query: subscriber uuid is required")
	}
	return nil
}
