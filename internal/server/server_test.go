package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"NewsCrawler/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTrackerFollowsProgress(t *testing.T) {
	tr := NewTracker("run-1", []string{"world", "sports"}, 2)
	events := make(chan pipeline.Progress, 5)
	events <- pipeline.Progress{Category: "world", OK: true, Done: 1, Total: 4}
	events <- pipeline.Progress{Category: "world", OK: true, Done: 2, Total: 4}
	events <- pipeline.Progress{Category: "world", OK: true, Done: 3, Total: 4}
	events <- pipeline.Progress{Category: "sports", OK: false, Done: 4, Total: 4}
	close(events)

	tr.Follow(events)
	st := tr.Snapshot()

	assert.Equal(t, "run-1", st.RunID)
	assert.True(t, st.Finished)
	assert.Equal(t, 4, st.Done)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, []CategoryStatus{
		{Category: "sports", Requested: 2, Obtained: 0, Failed: 1},
		{Category: "world", Requested: 2, Obtained: 2, Failed: 0},
	}, st.Categories)
}

func TestHTTPHandlers(t *testing.T) {
	tr := NewTracker("run-1", []string{"world"}, 5)
	tr.Observe(pipeline.Progress{Category: "world", OK: true, Done: 1, Total: 5})
	router := New(tr, nil).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Finished)
	assert.Equal(t, 1, st.Done)
	require.Len(t, st.Categories, 1)
	assert.Equal(t, 1, st.Categories[0].Obtained)
}

func TestGRPCHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(NewTracker("run-1", nil, 1), nil)
	lis := bufconn.Listen(1 << 20)
	s.serveGRPC(ctx, lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	s.Finish()
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
	assert.True(t, s.tracker.Snapshot().Finished)
}

func TestStartAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(NewTracker("run-1", nil, 1), nil)
	require.NoError(t, s.Start(ctx, "127.0.0.1:0", "127.0.0.1:0"))
	cancel()

	assert.Error(t, s.Start(context.Background(), "256.0.0.1:bad", ""))
}
