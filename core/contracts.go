package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// TaskStore owns the durable retry queue. Duplicate enqueues for the same
// serial are tolerated: the downstream upsert is idempotent by email.
type TaskStore interface {
	Enqueue(ctx context.Context, task Task) (string, error)
	// ListDue returns tasks whose backoff has elapsed and whose attempt
	// count is below maxAttempts.
	ListDue(ctx context.Context, now time.Time, backoff time.Duration, maxAttempts int) ([]Task, error)
	// MarkAttempt transactionally increments attempt_count and stamps
	// last_attempt_at. It runs BEFORE the retried work so a crash mid-retry
	// costs one attempt instead of causing an immediate re-retry storm.
	MarkAttempt(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
	RecordError(ctx context.Context, id string, message string) error
	ListFrozen(ctx context.Context, maxAttempts int) ([]Task, error)
}

// SubscriberStore owns the local subscriber table and the bonus flag.
type SubscriberStore interface {
	// UpsertIdentity inserts the subscriber if absent; an existing row is
	// left untouched.
	UpsertIdentity(ctx context.Context, sub Subscriber) error
	Get(ctx context.Context, uuid string) (Subscriber, error)
	BonusGranted(ctx context.Context, uuid string) (bool, error)
	// ClaimBonus flips bonus_granted false -> true with a conditional
	// update and reports whether this caller won the claim.
	ClaimBonus(ctx context.Context, uuid string) (bool, error)
	// ReleaseBonus undoes a claim after a failed disbursement so the next
	// reconciliation pass retries it.
	ReleaseBonus(ctx context.Context, uuid string) error
}

// IdentityResolver is the Identity Resolution API: card serial -> profile.
type IdentityResolver interface {
	Resolve(ctx context.Context, serial string) (Profile, error)
}

// DirectoryClient is the Subscriber Directory API.
type DirectoryClient interface {
	// Upsert posts the exact payload bytes and returns the directory's
	// subscriber identifier. Callers replaying a cached payload must not
	// re-serialize it.
	Upsert(ctx context.Context, payload []byte) (string, error)
	ListPage(ctx context.Context, listID int, page int) ([]DirectoryEntry, bool, error)
}

// BonusClient is the Bonus Disbursement API.
type BonusClient interface {
	Disburse(ctx context.Context, number string, sum float64, comment string) error
}

// RequestEvent records an inbound webhook request, successful or not.
type RequestEvent struct {
	Method     string
	Path       string
	RemoteAddr string
	Serial     string
	Event      string
	Error      string
}

// SerialEvent records a serial-cleaning failure for the audit trail.
type SerialEvent struct {
	OriginalSerial string
	CleanedSerial  string
	Error          string
}

// UpstreamCallEvent records one call to either upstream API.
type UpstreamCallEvent struct {
	Upstream   string
	URL        string
	Lookup     string
	Payload    []byte
	StatusCode int
	Response   string
	Error      string
}

// EventJournal persists the closed set of typed event records, one variant
// per audit table.
type EventJournal interface {
	AppendRequest(ctx context.Context, event RequestEvent) error
	AppendSerial(ctx context.Context, event SerialEvent) error
	AppendUpstreamCall(ctx context.Context, event UpstreamCallEvent) error
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// JobExecutionMessage mirrors the queue execution contract so retry and
// bonus passes can be driven from an external job queue.
type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
