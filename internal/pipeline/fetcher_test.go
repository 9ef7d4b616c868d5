package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"NewsCrawler/internal/limiter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{Timeout: timeout}, limiter.NewDomainLimiter(-1, 1), nil)
	require.NoError(t, err)
	return c
}

func TestClientGet(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>привет</body></html>"))
	}))
	defer srv.Close()

	body, err := newTestClient(t, time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "привет")
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.NotEmpty(t, gotLang)
}

func TestClientDecodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<p>caf\xe9</p>"))
	}))
	defer srv.Close()

	body, err := newTestClient(t, time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<p>café</p>", string(body))
}

func TestClientStatusErrors(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		_, err := newTestClient(t, time.Second).Get(context.Background(), srv.URL)
		srv.Close()

		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, KindStatus, fe.Kind)
		assert.Equal(t, tc.status, fe.StatusCode)
		assert.Equal(t, tc.transient, IsTransient(err), "status %d", tc.status)
	}
}

func TestClientTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(t, 50*time.Millisecond).Get(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.True(t, IsTransient(err))
}

func TestClientConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newTestClient(t, time.Second).Get(context.Background(), addr)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Transient())
}

func TestClientRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	c := newTestClient(t, time.Second)
	c.maxBody = 32
	_, err := c.Get(context.Background(), srv.URL)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindDecode, fe.Kind)
	assert.Contains(t, err.Error(), "body exceeds 32 bytes")
	assert.False(t, IsTransient(err))

	c.maxBody = 64
	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 64)
}

func TestClientPostJSON(t *testing.T) {
	var gotMethod, gotType, gotAccept, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"newsList":[]}`))
	}))
	defer srv.Close()

	body, err := newTestClient(t, time.Second).Post(context.Background(), srv.URL, []byte(`{"sectionId":4844}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"newsList":[]}`, string(body))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Contains(t, gotType, "application/json")
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, `{"sectionId":4844}`, gotBody)
}

func TestClientWaitsWhenThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := NewClientWithHTTP(srv.Client(), limiter.NewDomainLimiter(20, 1), nil, logger)
	assert.Contains(t, buf.String(), "user_agents=18")

	_, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "msg=throttled")

	start := time.Now()
	_, err = c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "msg=throttled")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestClientMalformedURL(t *testing.T) {
	_, err := newTestClient(t, time.Second).Get(context.Background(), "http://[::1")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil, nil)
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{Timeout: time.Second, Proxy: "::not a url"}, nil, nil)
	assert.Error(t, err)

	c, err := NewClient(ClientConfig{Timeout: time.Second, Proxy: "http://127.0.0.1:3128"}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestUserAgentRotation(t *testing.T) {
	ua := NewUserAgents("")
	require.Greater(t, ua.Len(), 1)

	seen := make(map[string]int)
	for i := 0; i < ua.Len()*2; i++ {
		seen[ua.Next()]++
	}
	assert.Len(t, seen, ua.Len())
	for agent, n := range seen {
		assert.Equal(t, 2, n, agent)
	}
}

func TestUserAgentFixed(t *testing.T) {
	ua := NewUserAgents("custom-bot/1.0")
	assert.Equal(t, 1, ua.Len())
	assert.Equal(t, "custom-bot/1.0", ua.Next())
	assert.Equal(t, "custom-bot/1.0", ua.Next())
}

func TestUserAgentConcurrentUse(t *testing.T) {
	ua := NewUserAgents("")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NotEmpty(t, ua.Next())
			}
		}()
	}
	wg.Wait()
}
