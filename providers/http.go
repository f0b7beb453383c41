package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/transport"
)

// StatusKind maps a provider HTTP status onto the canonical failure taxonomy.
func StatusKind(status int) core.ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return core.ErrorKindUnauthorized
	case status == http.StatusNotFound:
		return core.ErrorKindNotFound
	case status == http.StatusConflict:
		return core.ErrorKindConflict
	case status == http.StatusTooManyRequests:
		return core.ErrorKindRateLimited
	case status == http.StatusNotImplemented:
		return core.ErrorKindNotSupported
	case status >= http.StatusInternalServerError:
		return core.ErrorKindProviderUnavailable
	case status >= http.StatusBadRequest:
		return core.ErrorKindValidationFailed
	default:
		return core.ErrorKindInternal
	}
}

// ResponseError classifies a provider response. 2xx returns nil; everything
// else becomes a canonical error carrying the provider message and, for
// throttles, the provider retry hint.
func ResponseError(provider string, res core.TransportResponse) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	kind := StatusKind(res.StatusCode)
	message := responseMessage(res.Body)
	if message == "" {
		message = http.StatusText(res.StatusCode)
	}
	err := core.NewKindError(kind, fmt.Sprintf("%s: %s (status %d)", provider, message, res.StatusCode))
	if kind == core.ErrorKindRateLimited || kind == core.ErrorKindProviderUnavailable {
		if retryAfter, ok := transport.RetryAfterFromHeaders(res.Headers); ok {
			err = core.WithRetryHint(err, retryAfter)
		}
	}
	return err
}

func responseMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	for _, candidate := range []string{envelope.Message, envelope.Error, envelope.Detail} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// DoJSON executes one provider call and decodes the successful response body
// into target. target may be nil when the body does not matter.
func DoJSON(ctx context.Context, provider string, adapter core.TransportAdapter, req core.TransportRequest, target any) (core.TransportResponse, error) {
	if adapter == nil {
		return core.TransportResponse{}, core.NewKindError(core.ErrorKindInternal, fmt.Sprintf("%s: transport is not configured", provider))
	}
	if len(req.Body) > 0 {
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		if _, ok := req.Headers["Content-Type"]; !ok {
			req.Headers["Content-Type"] = "application/json"
		}
	}
	res, err := adapter.Do(ctx, req)
	if err != nil {
		return res, core.MapError(err)
	}
	if err := ResponseError(provider, res); err != nil {
		return res, err
	}
	if target != nil && len(res.Body) > 0 {
		if err := json.Unmarshal(res.Body, target); err != nil {
			return res, core.WrapKindError(core.ErrorKindProviderUnavailable, err, fmt.Sprintf("%s: decode response body", provider))
		}
	}
	return res, nil
}

// EncodeJSONBody marshals a request payload, normalizing marshal failures
// into the canonical envelope.
func EncodeJSONBody(provider string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.WrapKindError(core.ErrorKindInternal, err, fmt.Sprintf("%s: encode request body", provider))
	}
	return body, nil
}
