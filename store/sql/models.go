package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type taskRecord struct {
	bun.BaseModel `bun:"table:retry_tasks,alias:rt"`

	ID            string     `bun:"id,pk"`
	Kind          string     `bun:"kind,notnull"`
	Serial        string     `bun:"serial,notnull"`
	Event         string     `bun:"event,notnull"`
	CachedPayload []byte     `bun:"cached_payload"`
	AttemptCount  int        `bun:"attempt_count,notnull"`
	LastAttemptAt *time.Time `bun:"last_attempt_at,nullzero"`
	LastError     string     `bun:"last_error"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type subscriberRecord struct {
	bun.BaseModel `bun:"table:subscribers,alias:sub"`

	ID           string    `bun:"id,pk"`
	UUID         string    `bun:"uuid,notnull,unique"`
	Email        string    `bun:"email,notnull"`
	Phone        string    `bun:"phone"`
	BonusGranted bool      `bun:"bonus_granted,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type requestLogRecord struct {
	bun.BaseModel `bun:"table:request_log,alias:rl"`

	ID         string    `bun:"id,pk"`
	Method     string    `bun:"method,notnull"`
	Path       string    `bun:"path,notnull"`
	RemoteAddr string    `bun:"remote_addr"`
	Serial     string    `bun:"serial"`
	Event      string    `bun:"event"`
	Error      string    `bun:"error"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type serialLogRecord struct {
	bun.BaseModel `bun:"table:serial_log,alias:sl"`

	ID             string    `bun:"id,pk"`
	OriginalSerial string    `bun:"original_serial,notnull"`
	CleanedSerial  string    `bun:"cleaned_serial"`
	Error          string    `bun:"error"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type upstreamCallLogRecord struct {
	bun.BaseModel `bun:"table:upstream_call_log,alias:ucl"`

	ID         string    `bun:"id,pk"`
	Upstream   string    `bun:"upstream,notnull"`
	URL        string    `bun:"url"`
	Lookup     string    `bun:"lookup"`
	Payload    []byte    `bun:"payload"`
	StatusCode int       `bun:"status_code"`
	Response   string    `bun:"response"`
	Error      string    `bun:"error"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
