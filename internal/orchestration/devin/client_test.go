package devin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/agentbridge/internal/credential"
)

const testKey = "apk_test_0123456789abcdef"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		APIKey:         testKey,
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return c, &calls
}

func statusHandler(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}
}

func TestNewClient_InvalidCredential(t *testing.T) {
	for _, key := range []string{"", "short", "sk_0123456789abcdefghij"} {
		_, err := NewClient(ClientConfig{APIKey: key})
		require.ErrorIs(t, err, credential.ErrInvalidCredential, key)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(ClientConfig{APIKey: testKey, MaxRetries: -5})
	require.NoError(t, err)
	require.Equal(t, "https://api.devin.ai/v1", c.baseURL)
	require.Equal(t, 0, c.MaxRetries())
	require.Equal(t, DefaultRetryBaseDelay, c.baseDelay)
}

func TestClient_RetryBound(t *testing.T) {
	c, calls := newTestClient(t, statusHandler(http.StatusInternalServerError, `{"error":"boom"}`))

	_, err := c.CreateSession(context.Background(), CreateSessionRequest{Prompt: "hi"})

	require.ErrorIs(t, err, ErrTransientService)
	require.Equal(t, int32(1+DefaultMaxRetries), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.Equal(t, "boom", apiErr.Message)
}

func TestClient_ImmediateFailures(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		kind error
	}{
		{"401", http.StatusUnauthorized, `{"error":"bad key"}`, ErrAuthentication},
		{"403", http.StatusForbidden, `{"message":"forbidden"}`, ErrAuthentication},
		{"402", http.StatusPaymentRequired, `{"error":"pay up"}`, ErrInsufficientCredits},
		{"credit message on 400", http.StatusBadRequest, `{"error":"Insufficient credits remaining"}`, ErrInsufficientCredits},
		{"credit message on 503", http.StatusServiceUnavailable, `{"detail":"out of credits"}`, ErrInsufficientCredits},
		{"404", http.StatusNotFound, `not found`, ErrRequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, statusHandler(tt.code, tt.body))

			err := c.SendMessage(context.Background(), "s1", "hello", nil)

			require.ErrorIs(t, err, tt.kind)
			require.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"id":"sess-1","status":"running","title":"t"}`)
	})

	info, err := c.CreateSession(context.Background(), CreateSessionRequest{Prompt: "hi"})

	require.NoError(t, err)
	require.Equal(t, "sess-1", info.ID)
	require.Equal(t, int32(2), calls.Load())
}

func TestClient_GetStatusSingleAttempt(t *testing.T) {
	c, calls := newTestClient(t, statusHandler(http.StatusBadGateway, ""))

	_, err := c.GetStatus(context.Background(), "s1")

	require.ErrorIs(t, err, ErrTransientService)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: base, APIKey: testKey, MaxRetries: 3, RetryBaseDelay: time.Millisecond})
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), CreateSessionRequest{Prompt: "hi"})

	require.ErrorIs(t, err, ErrNetwork)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "ECONNREFUSED", apiErr.Code)
	require.Contains(t, DescribeError(err), "Network error (ECONNREFUSED)")
}

func TestClient_CancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(statusHandler(http.StatusServiceUnavailable, ""))
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: testKey, MaxRetries: 3, RetryBaseDelay: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err = c.CreateSession(ctx, CreateSessionRequest{Prompt: "hi"})

	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_CancelInFlight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: testKey})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err = c.GetStatus(ctx, "s1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_SanitizesMessages(t *testing.T) {
	c, _ := newTestClient(t, statusHandler(http.StatusBadRequest, `{"error":"rejected header Bearer apk_leaked_secret_value"}`))

	err := c.SendMessage(context.Background(), "s1", "x", nil)

	require.Error(t, err)
	require.NotContains(t, err.Error(), "apk_leaked_secret_value")
	require.Contains(t, err.Error(), credential.Redacted)
}

func TestExtractMessage_TruncatesOnRuneBoundary(t *testing.T) {
	got := extractMessage([]byte(strings.Repeat("é", maxMessageLength+50)))
	require.True(t, utf8.ValidString(got))
	require.True(t, strings.HasSuffix(got, "..."))
	require.LessOrEqual(t, utf8.RuneCountInString(got), maxMessageLength)

	short := "service unavailable"
	require.Equal(t, short, extractMessage([]byte(short)))
}

func TestClient_RequestShapes(t *testing.T) {
	type captured struct {
		method, path, auth string
		body               map[string]any
	}
	var (
		mu  sync.Mutex
		got []captured
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cp := captured{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&cp.body)
		}
		mu.Lock()
		got = append(got, cp)
		mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions":
			_, _ = io.WriteString(w, `{"session_id":"sess-9"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/sessions":
			_, _ = io.WriteString(w, `{"sessions":[{"session_id":"a","status":"running","title":"A"},{"session_id":"b","status":"completed","title":"B"}]}`)
		case r.Method == http.MethodGet:
			_, _ = io.WriteString(w, `{"status":"running","plan":{"content":"do it","status":"pending"}}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	})
	ctx := context.Background()

	info, err := c.CreateSession(ctx, CreateSessionRequest{
		Prompt: "fix it", EffortLevel: EffortDeep, PlanningMode: PlanningSyncConfirm,
	})
	require.NoError(t, err)
	require.Equal(t, "sess-9", info.ID)

	require.NoError(t, c.SendMessage(ctx, "sess-9", "more", []string{"https://x/1"}))

	status, err := c.GetStatus(ctx, "sess-9")
	require.NoError(t, err)
	require.Equal(t, "sess-9", status.ID)
	require.Equal(t, PlanPending, status.Plan.Status)

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "B", sessions[1].Title)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 4)
	for _, cp := range got {
		require.Equal(t, "Bearer "+testKey, cp.auth)
	}
	require.Equal(t, "fix it", got[0].body["prompt"])
	require.Equal(t, "deep", got[0].body["effort_level"])
	require.Equal(t, "sync_confirm", got[0].body["planning_mode_agency"])
	require.NotContains(t, got[0].body, "tags")
	require.Equal(t, "/sessions/sess-9/messages", got[1].path)
	require.Equal(t, []any{"https://x/1"}, got[1].body["attachments"])
	require.Equal(t, "/sessions/sess-9", got[2].path)
}

func TestClient_UploadFile(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"object", `{"url":"https://files/1"}`},
		{"json string", `"https://files/1"`},
		{"plain text", "https://files/1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/attachments", r.URL.Path)
				assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
				f, hdr, err := r.FormFile("file")
				if !assert.NoError(t, err) {
					return
				}
				defer f.Close()
				data, _ := io.ReadAll(f)
				assert.Equal(t, "a.js", hdr.Filename)
				assert.Equal(t, "console.log(1)", string(data))
				assert.Equal(t, "application/javascript", hdr.Header.Get("Content-Type"))
				_, _ = io.WriteString(w, tt.response)
			})

			u, err := c.UploadFile(context.Background(), "a.js", []byte("console.log(1)"), "application/javascript")
			require.NoError(t, err)
			require.Equal(t, "https://files/1", u)
		})
	}
}

func TestClient_UploadRetriesWithBody(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		assert.Equal(t, "payload", string(data))
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"url":"https://files/2"}`)
	})

	u, err := c.UploadFile(context.Background(), "p.bin", []byte("payload"), DefaultMimeType)
	require.NoError(t, err)
	require.Equal(t, "https://files/2", u)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_UploadMissingURL(t *testing.T) {
	c, _ := newTestClient(t, statusHandler(http.StatusOK, `{"id":"x"}`))

	_, err := c.UploadFile(context.Background(), "a.txt", []byte("x"), "text/plain")
	require.ErrorIs(t, err, ErrRequestFailed)
}
