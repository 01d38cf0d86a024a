package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmwatch/fmwatch/internal/models"
	"github.com/fmwatch/fmwatch/test/testutil"
)

var upgrader = websocket.Upgrader{}

// pushServer upgrades /api/ws and plays the given envelopes, answering ping
// with pong like the real hub.
func pushServer(t *testing.T, envs []models.PushEnvelope, requireCookie string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if requireCookie != "" {
			c, err := r.Cookie("id")
			if err != nil || c.Value != requireCookie {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for _, env := range envs {
			require.NoError(t, conn.WriteJSON(env))
		}

		// Stay open answering pings until the client goes away.
		for {
			var env models.PushEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Type == models.PushPing {
				_ = conn.WriteJSON(models.PushEnvelope{Type: models.PushPong})
			}
		}
	})
	return httptest.NewServer(mux)
}

func mustEnvelope(t *testing.T, kind models.PushType, payload interface{}) models.PushEnvelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.PushEnvelope{Type: kind, Data: data}
}

func newJar(t *testing.T) *cookiejar.Jar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return jar
}

func TestWSClientReceivesEnvelopes(t *testing.T) {
	envs := []models.PushEnvelope{
		mustEnvelope(t, models.PushTaskInfo, map[string]string{"id": "t1"}),
		mustEnvelope(t, models.PushTaskDeleted, "t2"),
	}
	server := pushServer(t, envs, "")
	defer server.Close()

	client := NewWSClient(server.URL, newJar(t), testutil.NewTestLogger())
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	var got []models.PushEnvelope
	for len(got) < 2 {
		select {
		case env := <-client.Messages():
			got = append(got, env)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for envelopes")
		}
	}

	assert.Equal(t, models.PushTaskInfo, got[0].Type)
	assert.Equal(t, models.PushTaskDeleted, got[1].Type)
}

func TestWSClientFiltersPong(t *testing.T) {
	envs := []models.PushEnvelope{
		{Type: models.PushPong},
		mustEnvelope(t, models.PushTaskDeleted, "t1"),
	}
	server := pushServer(t, envs, "")
	defer server.Close()

	client := NewWSClient(server.URL, newJar(t), testutil.NewTestLogger())
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case env := <-client.Messages():
		assert.Equal(t, models.PushTaskDeleted, env.Type, "pong must not surface")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestWSClientSendsSessionCookie(t *testing.T) {
	server := pushServer(t, []models.PushEnvelope{
		mustEnvelope(t, models.PushTaskDeleted, "t1"),
	}, "session-1")
	defer server.Close()

	jar := newJar(t)
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	jar.SetCookies(serverURL, []*http.Cookie{{Name: "id", Value: "session-1", Path: "/"}})

	client := NewWSClient(server.URL, jar, testutil.NewTestLogger())
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case env := <-client.Messages():
		assert.Equal(t, models.PushTaskDeleted, env.Type)
	case <-time.After(time.Second):
		t.Fatal("authenticated stream delivered nothing")
	}
}

func TestWSClientUnauthorizedHandshake(t *testing.T) {
	server := pushServer(t, nil, "session-1")
	defer server.Close()

	client := NewWSClient(server.URL, newJar(t), testutil.NewTestLogger())
	err := client.Connect(context.Background())

	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestWSClientChannelClosesWithStream(t *testing.T) {
	server := pushServer(t, nil, "")

	client := NewWSClient(server.URL, newJar(t), testutil.NewTestLogger())
	require.NoError(t, client.Connect(context.Background()))

	server.CloseClientConnections()
	server.Close()

	select {
	case _, open := <-client.Messages():
		assert.False(t, open, "message channel must close when the stream drops")
	case <-time.After(time.Second):
		t.Fatal("channel did not close after disconnect")
	}
}

func TestWSClientCloseIsIdempotent(t *testing.T) {
	server := pushServer(t, nil, "")
	defer server.Close()

	client := NewWSClient(server.URL, newJar(t), testutil.NewTestLogger())
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
