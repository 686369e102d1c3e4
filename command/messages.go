package command

import (
	"fmt"
	"strings"
)

const (
	TypeIngestCardEvent = "cardlink.command.card_event.ingest"
	TypeRunRetryPass    = "cardlink.command.retry.run_pass"
	TypeRunBonusPass    = "cardlink.command.bonus.run_pass"
)

type IngestCardEventMessage struct {
	Serial string
	Event  string
}

func (IngestCardEventMessage) Type() string { return TypeIngestCardEvent }

func (m IngestCardEventMessage) Validate() error {
	if strings.TrimSpace(m.Serial) == "" {
		return fmt.Errorf("command: serial is required")
	}
	if strings.TrimSpace(m.Event) == "" {
		return fmt.Errorf("command: event is required")
	}
	return nil
}

type RunRetryPassMessage struct{}

func (RunRetryPassMessage) Type() string { return TypeRunRetryPass }

func (RunRetryPassMessage) Validate() error { return nil }

type RunBonusPassMessage struct{}

func (RunBonusPassMessage) Type() string { return TypeRunBonusPass }

func (RunBonusPassMessage) Validate() error { return nil }
