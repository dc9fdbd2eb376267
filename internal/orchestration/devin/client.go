package devin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/agentbridge/internal/credential"
	"github.com/zjrosen/agentbridge/internal/log"
	"github.com/zjrosen/agentbridge/internal/orchestration/client"
)

const (
	// DefaultMaxRetries is how many times a transient failure is retried.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is multiplied by the attempt number between retries.
	DefaultRetryBaseDelay = time.Second

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 8 << 20

	maxMessageLength = 300
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the API root. Defaults to client.DevinProvider.BaseURL.
	BaseURL string

	// APIKey is the bearer credential. Must pass credential.Validate.
	APIKey string

	// HTTPClient is used for all requests. Defaults to a client whose
	// transport is http.DefaultTransport.
	HTTPClient *http.Client

	// MaxRetries is the retry ceiling for retryable calls. Zero disables
	// retries.
	MaxRetries int

	// RetryBaseDelay is the linear backoff unit. Defaults to DefaultRetryBaseDelay.
	RetryBaseDelay time.Duration
}

// Client is the authenticated Devin HTTP transport.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// NewClient validates the credential and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := credential.Check(cfg.APIKey); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = client.DevinProvider.BaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("devin: invalid base URL %q: %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultRetryBaseDelay
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	log.Debug(log.CatTransport, "client configured", "baseURL", baseURL, "key", credential.Mask(cfg.APIKey), "maxRetries", maxRetries)

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}, nil
}

// MaxRetries returns the configured retry ceiling.
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// CreateSession starts a new remote session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (client.SessionInfo, error) {
	const op = "create session"
	body, err := c.doJSON(ctx, op, http.MethodPost, "/sessions", req, true)
	if err != nil {
		return client.SessionInfo{}, err
	}

	var resp createSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return client.SessionInfo{}, malformed(op, err)
	}
	id := resp.ID
	if id == "" {
		id = resp.SessionID
	}
	if id == "" {
		return client.SessionInfo{}, malformed(op, errors.New("response has no session id"))
	}
	return client.SessionInfo{ID: id, Status: resp.Status, Title: resp.Title}, nil
}

// SendMessage posts content, plus optional attachment URLs, to a session.
func (c *Client) SendMessage(ctx context.Context, sessionID, content string, attachments []string) error {
	path := "/sessions/" + url.PathEscape(sessionID) + "/messages"
	_, err := c.doJSON(ctx, "send message", http.MethodPost, path, sendMessageRequest{
		Content:     content,
		Attachments: attachments,
	}, true)
	return err
}

// GetStatus fetches the session status. It makes a single attempt; the
// poller is what repeats it.
func (c *Client) GetStatus(ctx context.Context, sessionID string) (*StatusResponse, error) {
	const op = "get status"
	body, err := c.doJSON(ctx, op, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, false)
	if err != nil {
		return nil, err
	}

	var resp StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(op, err)
	}
	if resp.ID == "" {
		resp.ID = sessionID
	}
	return &resp, nil
}

// ListSessions fetches every session visible to the credential.
func (c *Client) ListSessions(ctx context.Context) ([]client.SessionInfo, error) {
	const op = "list sessions"
	body, err := c.doJSON(ctx, op, http.MethodGet, "/sessions", nil, true)
	if err != nil {
		return nil, err
	}

	var resp listSessionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(op, err)
	}
	sessions := make([]client.SessionInfo, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		sessions = append(sessions, client.SessionInfo{ID: s.SessionID, Status: s.Status, Title: s.Title})
	}
	return sessions, nil
}

// UploadFile uploads data as a multipart "file" field and returns its URL.
// The service may answer with {"url": ...}, a JSON string or plain text.
func (c *Client) UploadFile(ctx context.Context, filename string, data []byte, mimeType string) (string, error) {
	const op = "upload file"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("devin: %s: %w", op, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("devin: %s: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("devin: %s: %w", op, err)
	}
	payload := buf.Bytes()

	body, err := c.do(ctx, op, true, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attachments", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return "", err
	}

	u := parseUploadURL(body)
	if u == "" {
		return "", malformed(op, errors.New("response has no url"))
	}
	return u, nil
}

func parseUploadURL(body []byte) string {
	var obj uploadResponse
	if err := json.Unmarshal(body, &obj); err == nil && obj.URL != "" {
		return obj.URL
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return strings.TrimSpace(s)
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return ""
	}
	return text
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any, retry bool) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("devin: %s: encoding request body: %w", op, err)
		}
	}

	return c.do(ctx, op, retry, func() (*http.Request, error) {
		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
}

// do runs one logical call. When retry is set, transient failures are
// retried up to maxRetries times with a delay of baseDelay*(attempt+1).
func (c *Client) do(ctx context.Context, op string, retry bool, build func() (*http.Request, error)) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("devin: %s: creating request: %w", op, err)
		}

		body, err := c.send(ctx, op, req)
		if err == nil {
			return body, nil
		}
		if !retry || attempt >= c.maxRetries || !IsRetryable(err) {
			log.Debug(log.CatTransport, "request failed", "op", op, "attempt", attempt+1, "error", err)
			return nil, err
		}

		delay := c.baseDelay * time.Duration(attempt+1)
		log.Warn(log.CatTransport, "transient failure, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// send executes a single HTTP exchange and classifies the outcome.
func (c *Client) send(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{
			Kind:    ErrNetwork,
			Op:      op,
			Code:    networkCode(err),
			Message: credential.SanitizeError(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Kind: ErrNetwork, Op: op, Code: networkCode(err), Message: credential.SanitizeError(err), Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classifyStatus(op, resp.StatusCode, body)
}

// classifyStatus maps a non-2xx response to an APIError. Credit exhaustion
// is checked before the retry classification so it is never retried.
func classifyStatus(op string, status int, body []byte) *APIError {
	message := credential.Sanitize(extractMessage(body))
	apiErr := &APIError{Op: op, StatusCode: status, Message: message}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.Kind = ErrAuthentication
	case status == http.StatusPaymentRequired || isCreditMessage(message):
		apiErr.Kind = ErrInsufficientCredits
	case status == http.StatusTooManyRequests || status >= 500:
		apiErr.Kind = ErrTransientService
	default:
		apiErr.Kind = ErrRequestFailed
	}
	return apiErr
}

// extractMessage pulls a human-readable message out of an error body.
func extractMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, raw := range []json.RawMessage{payload.Error, payload.Detail} {
			if len(raw) == 0 {
				continue
			}
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(raw, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	text := strings.TrimSpace(string(body))
	return runewidth.Truncate(text, maxMessageLength, "...")
}

// networkCode names the low-level cause of a transport failure.
func networkCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.As(err, &dnsErr):
		return "ENOTFOUND"
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "ETIMEDOUT"
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return "ECONNRESET"
	default:
		return "ENETWORK"
	}
}

func malformed(op string, err error) *APIError {
	return &APIError{Kind: ErrRequestFailed, Op: op, Message: "malformed response: " + err.Error(), Err: err}
}
