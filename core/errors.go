package core

import (
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the canonical failure taxonomy exposed to callers. Every error
// that crosses the dispatcher boundary carries exactly one kind.
type ErrorKind string

const (
	ErrorKindValidationFailed    ErrorKind = "validation_failed"
	ErrorKindNotSupported        ErrorKind = "not_supported"
	ErrorKindUnauthorized        ErrorKind = "unauthorized"
	ErrorKindRateLimited         ErrorKind = "rate_limited"
	ErrorKindNotFound            ErrorKind = "not_found"
	ErrorKindConflict            ErrorKind = "conflict"
	ErrorKindProviderUnavailable ErrorKind = "provider_unavailable"
	ErrorKindInternal            ErrorKind = "internal"
)

const (
	UnifiedErrorBadInput            = "UNIFIED_BAD_INPUT"
	UnifiedErrorNotSupported        = "UNIFIED_NOT_SUPPORTED"
	UnifiedErrorUnauthorized        = "UNIFIED_UNAUTHORIZED"
	UnifiedErrorRateLimited         = "UNIFIED_RATE_LIMITED"
	UnifiedErrorNotFound            = "UNIFIED_NOT_FOUND"
	UnifiedErrorConflict            = "UNIFIED_CONFLICT"
	UnifiedErrorProviderUnavailable = "UNIFIED_PROVIDER_UNAVAILABLE"
	UnifiedErrorInternal            = "UNIFIED_INTERNAL_ERROR"
)

const retryAfterMetadataKey = "retry_after_ms"

func kindCategory(kind ErrorKind) goerrors.Category {
	switch kind {
	case ErrorKindValidationFailed:
		return goerrors.CategoryValidation
	case ErrorKindNotSupported:
		return goerrors.CategoryOperation
	case ErrorKindUnauthorized:
		return goerrors.CategoryAuth
	case ErrorKindRateLimited:
		return goerrors.CategoryRateLimit
	case ErrorKindNotFound:
		return goerrors.CategoryNotFound
	case ErrorKindConflict:
		return goerrors.CategoryConflict
	case ErrorKindProviderUnavailable:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryInternal
	}
}

func kindTextCode(kind ErrorKind) string {
	switch kind {
	case ErrorKindValidationFailed:
		return UnifiedErrorBadInput
	case ErrorKindNotSupported:
		return UnifiedErrorNotSupported
	case ErrorKindUnauthorized:
		return UnifiedErrorUnauthorized
	case ErrorKindRateLimited:
		return UnifiedErrorRateLimited
	case ErrorKindNotFound:
		return UnifiedErrorNotFound
	case ErrorKindConflict:
		return UnifiedErrorConflict
	case ErrorKindProviderUnavailable:
		return UnifiedErrorProviderUnavailable
	default:
		return UnifiedErrorInternal
	}
}

func categoryKind(category goerrors.Category) ErrorKind {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return ErrorKindValidationFailed
	case goerrors.CategoryOperation:
		return ErrorKindNotSupported
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorKindUnauthorized
	case goerrors.CategoryRateLimit:
		return ErrorKindRateLimited
	case goerrors.CategoryNotFound:
		return ErrorKindNotFound
	case goerrors.CategoryConflict:
		return ErrorKindConflict
	case goerrors.CategoryExternal:
		return ErrorKindProviderUnavailable
	default:
		return ErrorKindInternal
	}
}

// NewKindError builds a canonical error of the given kind.
func NewKindError(kind ErrorKind, message string) *goerrors.Error {
	return ensureUnifiedErrorEnvelope(
		goerrors.New(message, kindCategory(kind)).
			WithTextCode(kindTextCode(kind)),
	)
}

// WrapKindError wraps a provider-native error under a canonical kind.
func WrapKindError(kind ErrorKind, source error, message string) *goerrors.Error {
	return ensureUnifiedErrorEnvelope(
		goerrors.Wrap(source, kindCategory(kind), message).
			WithTextCode(kindTextCode(kind)),
	)
}

// KindOf reports the canonical kind carried by err, ErrorKindInternal when
// err carries no recognizable envelope.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return categoryKind(richErr.Category)
	}
	return ErrorKindInternal
}

// IsRetryable reports whether err is one of the two transient kinds the
// dispatcher is allowed to retry.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrorKindRateLimited, ErrorKindProviderUnavailable:
		return true
	}
	return false
}

// WithRetryHint attaches a provider-supplied retry delay to err.
func WithRetryHint(err *goerrors.Error, retryAfter time.Duration) *goerrors.Error {
	if err == nil || retryAfter <= 0 {
		return err
	}
	return err.WithMetadata(map[string]any{
		retryAfterMetadataKey: retryAfter.Milliseconds(),
	})
}

// RetryHint extracts a provider-supplied retry delay from err, ok=false when
// none was recorded.
func RetryHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return 0, false
	}
	raw, ok := richErr.Metadata[retryAfterMetadataKey]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, true
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, true
		}
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Millisecond, true
		}
	}
	return 0, false
}

func unifiedErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureUnifiedErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not supported"), strings.Contains(msg, "not implemented"):
		return NewKindError(ErrorKindNotSupported, err.Error())
	case strings.Contains(msg, "not registered"), strings.Contains(msg, "not found"):
		return NewKindError(ErrorKindNotFound, err.Error())
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid token"), strings.Contains(msg, "expired token"):
		return NewKindError(ErrorKindUnauthorized, err.Error())
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return NewKindError(ErrorKindRateLimited, err.Error())
	case strings.Contains(msg, "lease already held"), strings.Contains(msg, "already running"), strings.Contains(msg, "multiple records matched"):
		return NewKindError(ErrorKindConflict, err.Error())
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return NewKindError(ErrorKindValidationFailed, err.Error())
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureUnifiedErrorEnvelope(mapped)
}

func ensureUnifiedErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = unifiedHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = kindTextCode(categoryKind(err.Category))
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func unifiedHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
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
	case goerrors.CategoryOperation:
		return http.StatusNotImplemented
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError normalizes an arbitrary error into the canonical envelope.
func MapError(err error) *goerrors.Error {
	return unifiedErrorMapper(err)
}

// HTTPStatusFor renders the HTTP status the canonical envelope maps to.
func HTTPStatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := unifiedErrorMapper(err)
	if mapped == nil {
		return http.StatusOK
	}
	if mapped.Code != 0 {
		return mapped.Code
	}
	return unifiedHTTPStatus(mapped.Category)
}
