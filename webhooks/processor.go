package webhooks

import (
	"context"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/osmi-labs/cardlink/core"
)

// Outcome is the transport-agnostic result of processing one card event.
type Outcome struct {
	StatusCode int
	Body       map[string]any
}

// Ingestor is the pipeline surface the processor drives.
type Ingestor interface {
	Ingest(ctx context.Context, serial string, event string) error
}

// RequestMeta carries the transport details the audit journal records.
type RequestMeta struct {
	Method     string
	Path       string
	RemoteAddr string
}

// Processor validates inbound card events, runs them through the ingestor
// and classifies the result into an HTTP outcome. Validation failures are
// 400s that never reach the retry queue; upstream failures are 500s whose
// work has already been parked as a durable task by the pipeline. When
// parking itself fails the 500 body makes no retry promise.
type Processor struct {
	ingestor Ingestor
	journal  core.EventJournal
	logger   core.Logger
}

func NewProcessor(ingestor Ingestor, journal core.EventJournal, logger core.Logger) (*Processor, error) {
	if ingestor == nil {
		return nil, goerrors.New("webhooks: ingestor is required", goerrors.CategoryInternal)
	}
	return &Processor{
		ingestor: ingestor,
		journal:  journal,
		logger:   logger,
	}, nil
}

func (p *Processor) Process(ctx context.Context, meta RequestMeta, serial string, event string) Outcome {
	if p == nil || p.ingestor == nil {
		return Outcome{
			StatusCode: http.StatusInternalServerError,
			Body:       map[string]any{"error": "processor is not configured"},
		}
	}

	err := p.ingestor.Ingest(ctx, serial, event)
	p.journalRequest(ctx, meta, serial, event, err)
	if err == nil {
		return Outcome{
			StatusCode: http.StatusOK,
			Body:       map[string]any{"status": "success"},
		}
	}

	var svcErr *goerrors.Error
	if goerrors.As(err, &svcErr) {
		switch svcErr.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return Outcome{
				StatusCode: http.StatusBadRequest,
				Body:       map[string]any{"error": svcErr.Message},
			}
		}
	}
	if core.IsPersistenceError(err) {
		// The event could not be parked as a durable task: do not tell
		// the caller it will be retried.
		return Outcome{
			StatusCode: http.StatusInternalServerError,
			Body:       map[string]any{"error": "event processing failed"},
		}
	}
	return Outcome{
		StatusCode: http.StatusInternalServerError,
		Body:       map[string]any{"error": "event processing failed; queued for retry"},
	}
}

func (p *Processor) journalRequest(ctx context.Context, meta RequestMeta, serial string, event string, cause error) {
	if p.journal == nil {
		return
	}
	record := core.RequestEvent{
		Method:     meta.Method,
		Path:       meta.Path,
		RemoteAddr: meta.RemoteAddr,
		Serial:     serial,
		Event:      event,
	}
	if cause != nil {
		record.Error = cause.Error()
	}
	if err := p.journal.AppendRequest(ctx, record); err != nil && p.logger != nil {
		p.logger.Error("request journal append failed", "error", err)
	}
}
