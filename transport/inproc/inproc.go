// Package inproc provides an in-process loopback fabric: every
// transport attached to the same Hub can reach every other one. Used
// by tests and single-process demos.
package inproc

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/adwski/p2p-lobby/model"
	"github.com/adwski/p2p-lobby/transport"
)

const defaultInboxSize = 256

type Hub struct {
	mx    sync.RWMutex
	peers map[string]*Transport
}

func NewHub() *Hub {
	return &Hub{peers: make(map[string]*Transport)}
}

// NewTransport creates a detached transport with a generated peer id.
// It joins the fabric on Connect.
func (h *Hub) NewTransport() *Transport {
	return h.NewTransportWithID(uuid.NewString())
}

func (h *Hub) NewTransportWithID(id string) *Transport {
	return &Transport{
		hub:   h,
		id:    id,
		inbox: make(chan []byte, defaultInboxSize),
	}
}

func (h *Hub) attach(t *Transport) error {
	h.mx.Lock()
	defer h.mx.Unlock()
	if _, ok := h.peers[t.id]; ok {
		return transport.ErrPeerExists
	}
	h.peers[t.id] = t
	return nil
}

func (h *Hub) detach(id string) {
	h.mx.Lock()
	delete(h.peers, id)
	h.mx.Unlock()
}

func (h *Hub) broadcast(from string, frame []byte) {
	h.mx.RLock()
	defer h.mx.RUnlock()
	for id, p := range h.peers {
		if id != from {
			p.deliver(frame)
		}
	}
}

func (h *Hub) send(frame []byte, peers []string) {
	h.mx.RLock()
	defer h.mx.RUnlock()
	for _, id := range peers {
		if p, ok := h.peers[id]; ok {
			p.deliver(frame)
		}
	}
}

type Transport struct {
	hub   *Hub
	id    string
	inbox chan []byte

	mx        sync.Mutex
	connected bool
}

func (t *Transport) PeerID() string { return t.id }

// Connect attaches the transport to its hub. The endpoint argument is
// ignored; the hub is the fabric.
func (t *Transport) Connect(_ context.Context, _ string) error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.connected {
		return nil
	}
	if err := t.hub.attach(t); err != nil {
		return err
	}
	t.connected = true
	return nil
}

// Close detaches from the hub and closes the inbox. The hub is left
// first so no frame delivery can race the inbox close.
func (t *Transport) Close() {
	t.hub.detach(t.id)
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.connected {
		return
	}
	t.connected = false
	close(t.inbox)
}

func (t *Transport) Broadcast(payload []byte) error {
	frame, err := t.frame(payload)
	if err != nil {
		return err
	}
	t.hub.broadcast(t.id, frame)
	return nil
}

func (t *Transport) Send(payload []byte, peers []string) error {
	frame, err := t.frame(payload)
	if err != nil {
		return err
	}
	t.hub.send(frame, peers)
	return nil
}

func (t *Transport) Inbox() <-chan []byte { return t.inbox }

func (t *Transport) frame(payload []byte) ([]byte, error) {
	t.mx.Lock()
	connected := t.connected
	t.mx.Unlock()
	if !connected {
		return nil, transport.ErrNotConnected
	}
	return model.MarshalEnvelope(t.id, payload)
}

// deliver drops the frame when the receiver's inbox is saturated,
// mirroring a lossy network rather than blocking the fabric.
func (t *Transport) deliver(frame []byte) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.connected {
		return
	}
	select {
	case t.inbox <- frame:
	default:
	}
}
