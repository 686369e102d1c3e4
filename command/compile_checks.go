package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IngestCardEventMessage] = (*IngestCardEventCommand)(nil)
	_ gocmd.Commander[RunRetryPassMessage]    = (*RunRetryPassCommand)(nil)
	_ gocmd.Commander[RunBonusPassMessage]    = (*RunBonusPassCommand)(nil)
)
