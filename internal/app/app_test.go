package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/fabric/memfabric"
)

func TestParseServices(t *testing.T) {
	all, err := ParseServices(nil)
	require.NoError(t, err)
	require.Equal(t, []Service{Post, Search, Media}, all)

	all, err = ParseServices([]string{"all"})
	require.NoError(t, err)
	require.Len(t, all, 3)

	some, err := ParseServices([]string{"Search", "post", "search"})
	require.NoError(t, err)
	require.Equal(t, []Service{Search, Post}, some)

	_, err = ParseServices([]string{"billing"})
	require.Error(t, err)
}

func call(t *testing.T, h http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-Id", "u1")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestApp_SeparateServicesShareBroker(t *testing.T) {
	ctx := context.Background()
	broker := memfabric.NewBroker()
	cfg := config.Default()

	post, err := New(ctx, cfg, []Service{Post}, Options{Broker: broker})
	require.NoError(t, err)
	t.Cleanup(func() { _ = post.Close() })
	search, err := New(ctx, cfg, []Service{Search}, Options{Broker: broker})
	require.NoError(t, err)
	t.Cleanup(func() { _ = search.Close() })

	require.NoError(t, post.Start(ctx))
	require.NoError(t, search.Start(ctx))

	code, created := call(t, post.Handler(), http.MethodPost, "/api/posts", map[string]any{"content": "hello mesh"})
	require.Equal(t, http.StatusCreated, code)
	id := created["id"].(string)

	require.Eventually(t, func() bool {
		code, res := call(t, search.Handler(), http.MethodGet, "/api/search?query=mesh", nil)
		if code != http.StatusOK {
			return false
		}
		results, _ := res["results"].([]any)
		return len(results) == 1 && results[0].(map[string]any)["postId"] == id
	}, 2*time.Second, 10*time.Millisecond)

	// Each process only serves its own routes.
	code, _ = call(t, post.Handler(), http.MethodGet, "/api/search?query=mesh", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, health := call(t, search.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "search", health["service"])
}

func TestApp_MetricsEndpoint(t *testing.T) {
	a, err := New(context.Background(), config.Default(), []Service{Post}, Options{Broker: memfabric.NewBroker()})
	require.NoError(t, err)
	defer a.Close()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	a, err := New(context.Background(), cfg, []Service{Media}, Options{Broker: memfabric.NewBroker()})
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_FailsOnBadDriverAndCleansUp(t *testing.T) {
	cfg := config.Default()
	cfg.Fabric.Driver = "pigeon"
	_, err := New(context.Background(), cfg, []Service{Post}, Options{})
	require.Error(t, err)
}

func TestReemit(t *testing.T) {
	ctx := context.Background()
	broker := memfabric.NewBroker()
	conn := memfabric.Dial(broker, "postmesh_events.dev")
	defer conn.Close()

	got := make(chan fabric.Delivery, 1)
	require.NoError(t, conn.Bind(ctx, fabric.Binding{
		Queue:    fabric.QueueSpec{Name: "audit", Durable: true},
		Patterns: []string{"post.#"},
	}, func(_ context.Context, d fabric.Delivery) error {
		got <- d
		return nil
	}))

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Reemit(ctx, conn, "post.deleted", []byte(`{"postId":"post-1","userId":"u1","mediaIds":["m1"]}`), now))
	d := <-got
	require.Equal(t, "post.deleted", d.RoutingKey)
	require.Equal(t, "post-1", d.Key)
	require.JSONEq(t, `{"postId":"post-1","userId":"u1","mediaIds":["m1"]}`, string(d.Body))

	require.Error(t, Reemit(ctx, conn, "post..deleted", []byte(`{}`), now))
	require.Error(t, Reemit(ctx, conn, "post.created", []byte(`[1,2]`), now))
	require.Error(t, Reemit(ctx, conn, "post.created", []byte(`{"userId":"u1"}`), now))
}
