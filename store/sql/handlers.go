package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func taskHandlers() repository.ModelHandlers[*taskRecord] {
	return repository.ModelHandlers[*taskRecord]{
		NewRecord: func() *taskRecord {
			return &taskRecord{}
		},
		GetID: func(record *taskRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *taskRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *taskRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func subscriberHandlers() repository.ModelHandlers[*subscriberRecord] {
	return repository.ModelHandlers[*subscriberRecord]{
		NewRecord: func() *subscriberRecord {
			return &subscriberRecord{}
		},
		GetID: func(record *subscriberRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *subscriberRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *subscriberRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func requestLogHandlers() repository.ModelHandlers[*requestLogRecord] {
	return repository.ModelHandlers[*requestLogRecord]{
		NewRecord: func() *requestLogRecord {
			return &requestLogRecord{}
		},
		GetID: func(record *requestLogRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *requestLogRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *requestLogRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func serialLogHandlers() repository.ModelHandlers[*serialLogRecord] {
	return repository.ModelHandlers[*serialLogRecord]{
		NewRecord: func() *serialLogRecord {
			return &serialLogRecord{}
		},
		GetID: func(record *serialLogRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *serialLogRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *serialLogRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func upstreamCallLogHandlers() repository.ModelHandlers[*upstreamCallLogRecord] {
	return repository.ModelHandlers[*upstreamCallLogRecord]{
		NewRecord: func() *upstreamCallLogRecord {
			return &upstreamCallLogRecord{}
		},
		GetID: func(record *upstreamCallLogRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *upstreamCallLogRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *upstreamCallLogRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(raw string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
