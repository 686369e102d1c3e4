package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CardlinkErrorValidation  = "CARDLINK_VALIDATION"
	CardlinkErrorTransient   = "CARDLINK_UPSTREAM_TRANSIENT"
	CardlinkErrorPersistence = "CARDLINK_PERSISTENCE"
	CardlinkErrorTaskFrozen  = "CARDLINK_TASK_FROZEN"
	CardlinkErrorInternal    = "CARDLINK_INTERNAL"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// NewValidationError marks malformed or unsupported inbound input: rejected
// with 400 and never retried.
func NewValidationError(message string) *goerrors.Error {
	return ensureEnvelope(
		goerrors.New(message, goerrors.CategoryValidation).
			WithTextCode(CardlinkErrorValidation),
	)
}

// NewTransientUpstreamError marks a network failure, non-2xx status, or a
// missing required field from an upstream API. The caller enqueues a retry
// task and answers 500.
func NewTransientUpstreamError(message string) *goerrors.Error {
	return ensureEnvelope(
		goerrors.New(message, goerrors.CategoryOperation).
			WithTextCode(CardlinkErrorTransient),
	)
}

// NewPersistenceError marks the local store being unreachable. Nothing can
// be enqueued in that state, so the failing event is also written to the
// dead-letter log by the caller.
func NewPersistenceError(message string) *goerrors.Error {
	return ensureEnvelope(
		goerrors.New(message, goerrors.CategoryInternal).
			WithTextCode(CardlinkErrorPersistence),
	)
}

// NewFrozenTaskError marks a task that reached the attempt cap. It is left
// in the store and surfaced only through inspection.
func NewFrozenTaskError(message string) *goerrors.Error {
	return ensureEnvelope(
		goerrors.New(message, goerrors.CategoryConflict).
			WithTextCode(CardlinkErrorTaskFrozen),
	)
}

func IsValidationError(err error) bool {
	return hasTextCode(err, CardlinkErrorValidation)
}

func IsTransientUpstreamError(err error) bool {
	return hasTextCode(err, CardlinkErrorTransient)
}

func IsPersistenceError(err error) bool {
	return hasTextCode(err, CardlinkErrorPersistence)
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
}

func cardlinkErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unsupported event"), strings.Contains(msg, "serial is empty"):
		return NewValidationError(err.Error())
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(CardlinkErrorValidation))
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "status"):
		return NewTransientUpstreamError(err.Error())
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureEnvelope(mapped)
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = cardlinkHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return CardlinkErrorValidation
	case goerrors.CategoryOperation:
		return CardlinkErrorTransient
	case goerrors.CategoryConflict:
		return CardlinkErrorTaskFrozen
	default:
		return CardlinkErrorInternal
	}
}

func cardlinkHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
