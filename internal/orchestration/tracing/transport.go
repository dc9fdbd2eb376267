package tracing

import (
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/agentbridge/internal/credential"
)

// Transport is an http.RoundTripper that wraps every request in a client span.
type Transport struct {
	tracer trace.Tracer
	base   http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
// A nil tracer makes the transport a pass-through.
func NewTransport(tracer trace.Tracer, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{tracer: tracer, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tracer == nil {
		return t.base.RoundTrip(req)
	}

	op, sessionID := classifyPath(req.Method, req.URL.Path)
	ctx, span := t.tracer.Start(req.Context(), SpanPrefixHTTP+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String(AttrHTTPMethod, req.Method),
		attribute.String(AttrURLPath, req.URL.Path),
		attribute.String(AttrServerAddress, req.URL.Host),
		attribute.String(AttrOperation, op),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	span.SetAttributes(attrs...)

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		msg := credential.SanitizeError(err)
		span.RecordError(errors.New(msg))
		span.SetStatus(codes.Error, msg)
		return nil, err
	}

	span.SetAttributes(attribute.Int(AttrHTTPStatusCode, resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return resp, nil
}

// classifyPath names the API operation behind a request path and extracts
// the session id when present.
func classifyPath(method, path string) (op, sessionID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	// Drop a version prefix such as "v1".
	for len(parts) > 0 && parts[0] != "sessions" && parts[0] != "attachments" {
		parts = parts[1:]
	}
	switch {
	case len(parts) == 0:
		return OpOther, ""
	case parts[0] == "attachments":
		return OpUpload, ""
	case len(parts) == 1 && method == http.MethodPost:
		return OpCreateSession, ""
	case len(parts) == 1:
		return OpListSessions, ""
	case len(parts) == 3 && parts[2] == "messages":
		return OpSendMessage, parts[1]
	case len(parts) == 2 && method == http.MethodGet:
		return OpGetStatus, parts[1]
	default:
		return OpOther, parts[1]
	}
}

var _ http.RoundTripper = (*Transport)(nil)
