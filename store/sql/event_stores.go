package sqlstore

import (
	"context"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/osmi-labs/cardlink/core"
	"github.com/uptrace/bun"
)

// EventJournal writes the audit trail: one table per event variant so each
// keeps its own natural columns instead of a shared jsonb blob.
type EventJournal struct {
	requests  repository.Repository[*requestLogRecord]
	serials   repository.Repository[*serialLogRecord]
	upstreams repository.Repository[*upstreamCallLogRecord]
}

func NewEventJournal(db *bun.DB) (*EventJournal, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	requests := repository.NewRepository[*requestLogRecord](db, requestLogHandlers())
	if validator, ok := requests.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid request log repository wiring: %w", err)
		}
	}
	serials := repository.NewRepository[*serialLogRecord](db, serialLogHandlers())
	if validator, ok := serials.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid serial log repository wiring: %w", err)
		}
	}
	upstreams := repository.NewRepository[*upstreamCallLogRecord](db, upstreamCallLogHandlers())
	if validator, ok := upstreams.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid upstream call log repository wiring: %w", err)
		}
	}
	return &EventJournal{
		requests:  requests,
		serials:   serials,
		upstreams: upstreams,
	}, nil
}

func (j *EventJournal) AppendRequest(ctx context.Context, event core.RequestEvent) error {
	if j == nil || j.requests == nil {
		return fmt.Errorf("sqlstore: event journal is not configured")
	}
	if strings.TrimSpace(event.Method) == "" {
		return fmt.Errorf("sqlstore: request method is required")
	}
	_, err := j.requests.Create(ctx, &requestLogRecord{
		ID:         uuid.NewString(),
		Method:     strings.TrimSpace(event.Method),
		Path:       strings.TrimSpace(event.Path),
		RemoteAddr: strings.TrimSpace(event.RemoteAddr),
		Serial:     strings.TrimSpace(event.Serial),
		Event:      strings.TrimSpace(event.Event),
		Error:      strings.TrimSpace(event.Error),
	})
	return err
}

func (j *EventJournal) AppendSerial(ctx context.Context, event core.SerialEvent) error {
	if j == nil || j.serials == nil {
		return fmt.Errorf("sqlstore: event journal is not configured")
	}
	if strings.TrimSpace(event.OriginalSerial) == "" {
		return fmt.Errorf("sqlstore: original serial is required")
	}
	_, err := j.serials.Create(ctx, &serialLogRecord{
		ID:             uuid.NewString(),
		OriginalSerial: strings.TrimSpace(event.OriginalSerial),
		CleanedSerial:  strings.TrimSpace(event.CleanedSerial),
		Error:          strings.TrimSpace(event.Error),
	})
	return err
}

func (j *EventJournal) AppendUpstreamCall(ctx context.Context, event core.UpstreamCallEvent) error {
	if j == nil || j.upstreams == nil {
		return fmt.Errorf("sqlstore: event journal is not configured")
	}
	if strings.TrimSpace(event.Upstream) == "" {
		return fmt.Errorf("sqlstore: upstream name is required")
	}
	_, err := j.upstreams.Create(ctx, &upstreamCallLogRecord{
		ID:         uuid.NewString(),
		Upstream:   strings.TrimSpace(event.Upstream),
		URL:        strings.TrimSpace(event.URL),
		Lookup:     strings.TrimSpace(event.Lookup),
		Payload:    append([]byte(nil), event.Payload...),
		StatusCode: event.StatusCode,
		Response:   strings.TrimSpace(event.Response),
		Error:      strings.TrimSpace(event.Error),
	})
	return err
}

var _ core.EventJournal = (*EventJournal)(nil)
