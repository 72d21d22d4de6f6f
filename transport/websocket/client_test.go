package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/p2p-lobby/model"
	"github.com/adwski/p2p-lobby/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()
	logger := zerolog.Nop()
	sw := relay.NewSwitch(&logger)
	srv := relay.NewServer(relay.Config{Logger: &logger, Switch: sw, ListenAddr: ":0"})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func startClient(t *testing.T, endpoint, id string) *Client {
	t.Helper()
	logger := zerolog.Nop()
	c := New(Config{Logger: &logger, PeerID: id})
	require.NoError(t, c.Connect(context.Background(), endpoint))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func recvEnvelope(t *testing.T, c *Client) model.Envelope {
	t.Helper()
	select {
	case raw := <-c.Inbox():
		var env model.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		require.NotNil(t, env.Result)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return model.Envelope{}
	}
}

func TestClient_GeneratedPeerID(t *testing.T) {
	logger := zerolog.Nop()
	c := New(Config{Logger: &logger})
	assert.NotEmpty(t, c.PeerID())
}

func TestClient_BroadcastThroughRelay(t *testing.T) {
	endpoint := startRelay(t)
	a := startClient(t, endpoint, "a")
	b := startClient(t, endpoint, "b")
	c := startClient(t, endpoint, "c")

	require.NoError(t, a.Broadcast([]byte(`{"hello":"all"}`)))

	for _, cl := range []*Client{b, c} {
		env := recvEnvelope(t, cl)
		assert.Equal(t, "a", env.Result.From)
		assert.JSONEq(t, `{"hello":"all"}`, string(env.Result.Data))
	}
}

func TestClient_DirectedSendThroughRelay(t *testing.T) {
	endpoint := startRelay(t)
	a := startClient(t, endpoint, "a")
	b := startClient(t, endpoint, "b")
	c := startClient(t, endpoint, "c")

	require.NoError(t, a.Send([]byte(`{"x":1}`), []string{"b"}))

	env := recvEnvelope(t, b)
	assert.Equal(t, "a", env.Result.From)

	select {
	case <-c.Inbox():
		t.Fatal("unaddressed peer received frame")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_SendBeforeConnect(t *testing.T) {
	logger := zerolog.Nop()
	c := New(Config{Logger: &logger, PeerID: "a"})
	require.Error(t, c.Broadcast([]byte(`{}`)))
}
