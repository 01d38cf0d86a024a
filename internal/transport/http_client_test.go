package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmwatch/fmwatch/internal/config"
	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/test/testutil"
)

func newTestHTTPClient(serverURL string) *HTTPClient {
	cfg := &config.APIConfig{
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		UserAgent:  "fmwatch-test",
	}
	c := NewHTTPClient(cfg, testutil.NewTestLogger())
	c.retryDelay = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func okEnvelope(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": true, "message": "", "data": nil})
}

func TestLoginStoresSessionCookie(t *testing.T) {
	var sawCookie atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "admin", req.Username)
		http.SetCookie(w, &http.Cookie{Name: "id", Value: "session-1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/task/query", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("id"); err == nil && c.Value == "session-1" {
			sawCookie.Store(true)
		}
		writeJSON(w, http.StatusOK, []models.TaskPatch{})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, "admin", "secret"))
	_, err := client.QueryTasks(ctx)
	require.NoError(t, err)
	assert.True(t, sawCookie.Load(), "session cookie must ride along on later requests")
}

func TestLoginSurfacesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "wrong password"})
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	err := client.Login(context.Background(), "admin", "nope")

	require.Error(t, err)
	assert.True(t, models.IsBusinessError(err))
	assert.Contains(t, err.Error(), "wrong password")
}

func TestQueryTasksParsesBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/task/query", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "t1", "status": "running", "copiedSize": 5, "totalSize": 10},
			{"id": "t2", "status": "completed"}
		]`))
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	patches, err := client.QueryTasks(context.Background())

	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.Equal(t, "t1", patches[0].ID)
	require.NotNil(t, patches[0].Status)
	assert.Equal(t, models.StatusRunning, *patches[0].Status)
	assert.Nil(t, patches[1].CopiedSize, "omitted counter stays nil")
}

func TestQueryTasksUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	_, err := client.QueryTasks(context.Background())

	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestTaskCommandSendsIDQuery(t *testing.T) {
	var gotPath, gotID, gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.URL.Query().Get("id")
		gotMethod = r.Method
		okEnvelope(w)
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	require.NoError(t, client.TaskCommand(context.Background(), "POST", "/api/task/suspend", "t9"))

	assert.Equal(t, "/api/task/suspend", gotPath)
	assert.Equal(t, "t9", gotID)
	assert.Equal(t, "POST", gotMethod)
}

func TestTaskCommandBusinessRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"code": false, "message": "task is not running",
		})
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	err := client.TaskCommand(context.Background(), "POST", "/api/task/suspend", "t1")

	require.Error(t, err)
	assert.True(t, models.IsBusinessError(err))
	assert.Contains(t, err.Error(), "task is not running")
}

func TestPostCommandSendsJSONBody(t *testing.T) {
	var got models.CopyMoveRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		okEnvelope(w)
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	err := client.PostCommand(context.Background(), "/api/file/copy", models.CopyMoveRequest{
		IsCopy: true,
		Source: "/docs",
		Target: "/backup",
		Files:  []string{"a.txt", "b.txt"},
	})

	require.NoError(t, err)
	assert.True(t, got.IsCopy)
	assert.Equal(t, []string{"a.txt", "b.txt"}, got.Files)
}

func TestFetchConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int64{"maxUploadSize": 1 << 30})
	}))
	defer server.Close()

	client := newTestHTTPClient(server.URL)
	cfg, err := client.FetchConfig(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), cfg.MaxUploadSize)
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, []models.TaskPatch{})
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		UserAgent:  "fmwatch-test",
	}
	client := NewHTTPClient(cfg, testutil.NewTestLogger())
	client.retryDelay = time.Millisecond

	_, err := client.QueryTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		UserAgent:  "fmwatch-test",
	}
	client := NewHTTPClient(cfg, testutil.NewTestLogger())
	client.retryDelay = time.Millisecond

	_, err := client.QueryTasks(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}
