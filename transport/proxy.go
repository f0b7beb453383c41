package transport

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-unified/core"
)

// CredentialSource hands the proxy a live access token per pair. Token
// issuance and refresh live outside this module.
type CredentialSource interface {
	AccessToken(ctx context.Context, pair core.PairKey) (string, error)
}

// CredentialSourceFunc adapts a plain function into a CredentialSource.
type CredentialSourceFunc func(ctx context.Context, pair core.PairKey) (string, error)

func (f CredentialSourceFunc) AccessToken(ctx context.Context, pair core.PairKey) (string, error) {
	return f(ctx, pair)
}

// ProxyTransport is the per-pair transport handed to adapter init hooks. It
// injects the bearer credential and feeds the rate-limit policy before and
// after every call.
type ProxyTransport struct {
	Pair        core.PairKey
	Inner       core.TransportAdapter
	Credentials CredentialSource
	RateLimit   core.RateLimitPolicy
}

func NewProxyTransport(
	pair core.PairKey,
	inner core.TransportAdapter,
	credentials CredentialSource,
	rateLimit core.RateLimitPolicy,
) *ProxyTransport {
	return &ProxyTransport{
		Pair:        pair,
		Inner:       inner,
		Credentials: credentials,
		RateLimit:   rateLimit,
	}
}

func (p *ProxyTransport) Kind() string {
	if p == nil || p.Inner == nil {
		return ""
	}
	return p.Inner.Kind()
}

func (p *ProxyTransport) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if p == nil || p.Inner == nil {
		return core.TransportResponse{}, transportError(
			"transport: proxy requires an inner adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if err := p.Pair.Validate(); err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: proxy pair is invalid",
			http.StatusBadRequest,
			nil,
		)
	}

	key := core.RateLimitKey{
		CustomerID:   p.Pair.CustomerID,
		ProviderName: p.Pair.ProviderName,
		BucketKey:    bucketForRequest(req),
	}
	if p.RateLimit != nil {
		if err := p.RateLimit.BeforeCall(ctx, key); err != nil {
			return core.TransportResponse{}, err
		}
	}

	if p.Credentials != nil {
		token, err := p.Credentials.AccessToken(ctx, p.Pair)
		if err != nil {
			return core.TransportResponse{}, transportWrapError(
				err,
				goerrors.CategoryAuth,
				"transport: resolve access token",
				http.StatusUnauthorized,
				map[string]any{"pair": p.Pair.String()},
			)
		}
		if strings.TrimSpace(token) != "" {
			if req.Headers == nil {
				req.Headers = map[string]string{}
			} else {
				headers := make(map[string]string, len(req.Headers)+1)
				for k, v := range req.Headers {
					headers[k] = v
				}
				req.Headers = headers
			}
			req.Headers["Authorization"] = "Bearer " + strings.TrimSpace(token)
		}
	}

	res, err := p.Inner.Do(ctx, req)
	if p.RateLimit != nil {
		meta := responseMeta(res, err)
		_ = p.RateLimit.AfterCall(ctx, key, meta)
	}
	return res, err
}

func bucketForRequest(req core.TransportRequest) string {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if method == http.MethodGet || method == http.MethodHead {
		return "read"
	}
	return "write"
}

func responseMeta(res core.TransportResponse, err error) core.ProviderResponseMeta {
	meta := core.ProviderResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Metadata:   res.Metadata,
	}
	if err != nil && meta.StatusCode == 0 {
		meta.StatusCode = http.StatusBadGateway
	}
	if retryAfter, ok := RetryAfterFromHeaders(res.Headers); ok {
		meta.RetryAfter = &retryAfter
	}
	return meta
}

// RetryAfterFromHeaders parses a Retry-After header, either delta-seconds or
// an HTTP date.
func RetryAfterFromHeaders(headers map[string]string) (time.Duration, bool) {
	if len(headers) == 0 {
		return 0, false
	}
	raw := ""
	for key, value := range headers {
		if strings.EqualFold(strings.TrimSpace(key), "retry-after") {
			raw = strings.TrimSpace(value)
			break
		}
	}
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := time.Parse(time.RFC1123, raw); err == nil {
		if retryAt.After(time.Now().UTC()) {
			return retryAt.Sub(time.Now().UTC()), true
		}
	}
	if retryAt, err := time.Parse(time.RFC1123Z, raw); err == nil {
		if retryAt.After(time.Now().UTC()) {
			return retryAt.Sub(time.Now().UTC()), true
		}
	}
	return 0, false
}

// Resolver builds one proxy per pair over a shared inner adapter.
type Resolver struct {
	Registry    *Registry
	Kind        string
	Credentials CredentialSource
	RateLimit   core.RateLimitPolicy
}

func (r *Resolver) ResolveTransport(_ context.Context, pair core.PairKey) (core.TransportAdapter, error) {
	if r == nil || r.Registry == nil {
		return nil, transportError(
			"transport: resolver requires a registry",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	kind := strings.TrimSpace(r.Kind)
	if kind == "" {
		kind = KindREST
	}
	inner, err := r.Registry.Build(kind, nil)
	if err != nil {
		return nil, err
	}
	return NewProxyTransport(pair, inner, r.Credentials, r.RateLimit), nil
}

var _ core.TransportAdapter = (*ProxyTransport)(nil)
var _ core.TransportResolver = (*Resolver)(nil)
