package lobby

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adwski/p2p-lobby/model"
)

type fakeSend struct {
	payload []byte
	peers   []string
}

// fakeTransport records outbound traffic and lets tests inject inbound
// frames directly through Engine.handleFrame.
type fakeTransport struct {
	id    string
	inbox chan []byte

	mx         sync.Mutex
	broadcasts [][]byte
	sends      []fakeSend
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id, inbox: make(chan []byte, 64)}
}

func (f *fakeTransport) PeerID() string                        { return f.id }
func (f *fakeTransport) Connect(context.Context, string) error { return nil }
func (f *fakeTransport) Inbox() <-chan []byte                  { return f.inbox }

func (f *fakeTransport) Broadcast(payload []byte) error {
	f.mx.Lock()
	f.broadcasts = append(f.broadcasts, payload)
	f.mx.Unlock()
	return nil
}

func (f *fakeTransport) Send(payload []byte, peers []string) error {
	f.mx.Lock()
	f.sends = append(f.sends, fakeSend{payload: payload, peers: peers})
	f.mx.Unlock()
	return nil
}

func (f *fakeTransport) broadcastAt(i int) []byte {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.broadcasts[i]
}

func (f *fakeTransport) broadcastCount() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return len(f.broadcasts)
}

func (f *fakeTransport) sendCount() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return len(f.sends)
}

func (f *fakeTransport) lastSend() fakeSend {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.sends[len(f.sends)-1]
}

func newTestEngine(t *testing.T, tr *fakeTransport, clk clock.Clock) *Engine {
	t.Helper()
	logger := zerolog.Nop()
	e := NewEngine(Config{Logger: &logger, Transport: tr, Clock: clk})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.Start(ctx, ""))
	return e
}

// frameFor builds the inbound envelope frame a transport would deliver
// for a table-carrying notification from peer from.
func frameFor(t *testing.T, from, kind string, table *model.Table) []byte {
	t.Helper()
	payload, err := model.MarshalTableMessage(kind, table)
	require.NoError(t, err)
	frame, err := model.MarshalEnvelope(from, payload)
	require.NoError(t, err)
	return frame
}

func tableMsgFrame(t *testing.T, from string, message json.RawMessage) []byte {
	t.Helper()
	payload, err := model.MarshalTableMsg(message)
	require.NoError(t, err)
	frame, err := model.MarshalEnvelope(from, payload)
	require.NoError(t, err)
	return frame
}

func expectEvent(t *testing.T, e *Engine, kind string) model.Event {
	t.Helper()
	select {
	case ev := <-e.Events():
		require.Equal(t, kind, ev.Kind)
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no %s event", kind)
		return model.Event{}
	}
}

func expectNoEvent(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func strptr(s string) *string { return &s }
