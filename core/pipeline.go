package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Pipeline runs the resolve-upsert sequence shared by the ingestion path
// and the retry scheduler: identity lookup by cleaned serial, then
// subscriber-directory upsert, then local persistence. Failures from either
// upstream are converted into durable tasks instead of being dropped.
type Pipeline struct {
	config    Config
	identity  IdentityResolver
	directory DirectoryClient
	tasks     TaskStore
	subs      SubscriberStore
	journal   EventJournal
	logger    Logger
	now       func() time.Time
}

func NewPipeline(
	cfg Config,
	identity IdentityResolver,
	directory DirectoryClient,
	tasks TaskStore,
	subs SubscriberStore,
	journal EventJournal,
	logger Logger,
) (*Pipeline, error) {
	if identity == nil {
		return nil, fmt.Errorf("core: identity resolver is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("core: directory client is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("core: task store is required")
	}
	if subs == nil {
		return nil, fmt.Errorf("core: subscriber store is required")
	}
	return &Pipeline{
		config:    cfg,
		identity:  identity,
		directory: directory,
		tasks:     tasks,
		subs:      subs,
		journal:   journal,
		logger:    logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Ingest validates an inbound card-creation event and drives the pipeline
// synchronously. A nil return means one subscriber was upserted and
// persisted; a validation error means the event was rejected without a
// retryable task; a transient error means a task was enqueued for replay.
// A persistence error means the event could not be parked for retry and
// was dead-letter logged instead.
func (p *Pipeline) Ingest(ctx context.Context, serial string, event string) error {
	if p == nil {
		return NewPersistenceError("core: pipeline is not configured")
	}
	serial = strings.TrimSpace(serial)
	event = strings.TrimSpace(event)
	if serial == "" || event == "" {
		return NewValidationError("core: serial and event parameters are required")
	}
	if event != string(TaskKindCardCreate) {
		return NewValidationError(fmt.Sprintf("core: unsupported event %q", event))
	}

	cleaned, err := CleanSerial(serial)
	if err != nil {
		p.journalSerial(ctx, serial, "", err.Error())
		p.recordTerminal(ctx, serial, event, err.Error())
		return NewValidationError(err.Error())
	}

	profile, err := p.resolve(ctx, cleaned)
	if err != nil {
		// Payload is rebuilt on retry: nothing was committed yet, so a
		// fresh resolution is safe.
		if enqErr := p.enqueue(ctx, serial, event, nil, err.Error()); enqErr != nil {
			return enqErr
		}
		return err
	}

	payload, err := json.Marshal(BuildUpsertPayload(profile, p.config.Directory.ListID))
	if err != nil {
		return NewPersistenceError(fmt.Sprintf("core: encode upsert payload: %v", err))
	}

	uuid, err := p.upsert(ctx, payload)
	if err != nil {
		// The payload is committed into the task verbatim: replay must use
		// these exact bytes rather than re-resolving.
		if enqErr := p.enqueue(ctx, serial, event, payload, err.Error()); enqErr != nil {
			return enqErr
		}
		return err
	}

	p.persistSubscriber(ctx, uuid, profile.Email, profile.Phone)
	logInfo(ctx, p.logger, "card event processed", map[string]any{
		"serial": serial,
		"email":  profile.Email,
		"uuid":   uuid,
	})
	return nil
}

// Replay re-executes a due task. Tasks carrying a cached payload skip
// identity resolution entirely; the rest re-resolve from scratch.
func (p *Pipeline) Replay(ctx context.Context, task Task) error {
	if p == nil {
		return NewPersistenceError("core: pipeline is not configured")
	}
	if len(task.CachedPayload) > 0 {
		uuid, err := p.upsert(ctx, task.CachedPayload)
		if err != nil {
			return err
		}
		p.persistFromPayload(ctx, uuid, task.CachedPayload)
		return nil
	}

	cleaned, err := CleanSerial(task.Serial)
	if err != nil {
		return NewValidationError(err.Error())
	}
	profile, err := p.resolve(ctx, cleaned)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(BuildUpsertPayload(profile, p.config.Directory.ListID))
	if err != nil {
		return NewPersistenceError(fmt.Sprintf("core: encode upsert payload: %v", err))
	}
	uuid, err := p.upsert(ctx, payload)
	if err != nil {
		return err
	}
	p.persistSubscriber(ctx, uuid, profile.Email, profile.Phone)
	return nil
}

func (p *Pipeline) resolve(ctx context.Context, cleaned string) (Profile, error) {
	profile, err := p.identity.Resolve(ctx, cleaned)
	if err != nil {
		p.journalUpstream(ctx, UpstreamCallEvent{
			Upstream: "identity",
			URL:      p.config.Identity.URL,
			Lookup:   cleaned,
			Error:    err.Error(),
		})
		return Profile{}, NewTransientUpstreamError(fmt.Sprintf("core: identity resolution failed for %q: %v", cleaned, err))
	}
	if strings.TrimSpace(profile.Email) == "" {
		message := fmt.Sprintf("core: identity profile for %q has no email", cleaned)
		p.journalUpstream(ctx, UpstreamCallEvent{
			Upstream: "identity",
			URL:      p.config.Identity.URL,
			Lookup:   cleaned,
			Error:    message,
		})
		return Profile{}, NewTransientUpstreamError(message)
	}
	return profile, nil
}

func (p *Pipeline) upsert(ctx context.Context, payload []byte) (string, error) {
	uuid, err := p.directory.Upsert(ctx, payload)
	if err != nil {
		p.journalUpstream(ctx, UpstreamCallEvent{
			Upstream: "directory",
			URL:      p.config.Directory.URL,
			Payload:  payload,
			Error:    err.Error(),
		})
		return "", NewTransientUpstreamError(fmt.Sprintf("core: directory upsert failed: %v", err))
	}
	return uuid, nil
}

func (p *Pipeline) enqueue(ctx context.Context, serial string, event string, payload []byte, cause string) error {
	_, err := p.tasks.Enqueue(ctx, Task{
		Kind:          TaskKindCardCreate,
		Serial:        serial,
		Event:         event,
		CachedPayload: payload,
		AttemptCount:  0,
		LastError:     cause,
		CreatedAt:     p.now(),
	})
	if err == nil {
		return nil
	}
	// The store itself is unreachable: the event cannot be parked for
	// retry, so the dead-letter log line is the only remaining trace.
	logError(ctx, p.logger, "dead letter: retry enqueue failed", map[string]any{
		"dead_letter": true,
		"serial":      serial,
		"event":       event,
		"cause":       cause,
		"error":       err.Error(),
	})
	return NewPersistenceError(fmt.Sprintf("core: retry enqueue failed: %v", err))
}

// recordTerminal freezes an audit-only task at the attempt cap so the
// failure is inspectable but never replayed.
func (p *Pipeline) recordTerminal(ctx context.Context, serial string, event string, cause string) {
	_, err := p.tasks.Enqueue(ctx, Task{
		Kind:         TaskKindCardCreate,
		Serial:       serial,
		Event:        event,
		AttemptCount: p.config.Retry.MaxAttempts,
		LastError:    cause,
		CreatedAt:    p.now(),
	})
	if err != nil {
		logError(ctx, p.logger, "dead letter: terminal audit record failed", map[string]any{
			"dead_letter": true,
			"serial":      serial,
			"event":       event,
			"cause":       cause,
			"error":       err.Error(),
		})
	}
}

func (p *Pipeline) persistSubscriber(ctx context.Context, uuid string, email string, phone string) {
	err := p.subs.UpsertIdentity(ctx, Subscriber{
		UUID:      strings.TrimSpace(uuid),
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		CreatedAt: p.now(),
	})
	if err != nil {
		logError(ctx, p.logger, "subscriber persistence failed after upsert", map[string]any{
			"uuid":  uuid,
			"email": email,
			"error": err.Error(),
		})
	}
}

func (p *Pipeline) persistFromPayload(ctx context.Context, uuid string, payload []byte) {
	var decoded struct {
		Email   string `json:"email"`
		Attribs struct {
			Phone string `json:"phone"`
		} `json:"attribs"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		logError(ctx, p.logger, "cached payload decode failed", map[string]any{
			"uuid":  uuid,
			"error": err.Error(),
		})
		return
	}
	p.persistSubscriber(ctx, uuid, decoded.Email, decoded.Attribs.Phone)
}

func (p *Pipeline) journalSerial(ctx context.Context, original string, cleaned string, message string) {
	if p.journal == nil {
		return
	}
	if err := p.journal.AppendSerial(ctx, SerialEvent{
		OriginalSerial: original,
		CleanedSerial:  cleaned,
		Error:          message,
	}); err != nil {
		logError(ctx, p.logger, "serial journal append failed", map[string]any{"error": err.Error()})
	}
}

func (p *Pipeline) journalUpstream(ctx context.Context, event UpstreamCallEvent) {
	if p.journal == nil {
		return
	}
	if err := p.journal.AppendUpstreamCall(ctx, event); err != nil {
		logError(ctx, p.logger, "upstream journal append failed", map[string]any{"error": err.Error()})
	}
}
