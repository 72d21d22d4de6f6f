// Package transport defines the peer-to-peer fabric the lobby runs
// over. The lobby never looks below this seam: it hands fully encoded
// notification payloads down and receives raw envelope frames up.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotConnected = errors.New("transport is not connected")
	ErrPeerExists   = errors.New("peer id already connected")
)

// Transport carries lobby payloads between peers. Implementations wrap
// outbound payloads into the {"result":{"from":...,"data":...}}
// envelope before delivery, so receivers learn the sender identity
// from the frame itself.
type Transport interface {
	// PeerID returns this peer's identifier on the fabric.
	PeerID() string
	// Connect attaches the transport to the fabric at endpoint.
	Connect(ctx context.Context, endpoint string) error
	// Broadcast delivers payload to every other connected peer.
	Broadcast(payload []byte) error
	// Send delivers payload to the listed peers only.
	Send(payload []byte, peers []string) error
	// Inbox yields inbound envelope frames in delivery order. The
	// channel is closed when the transport disconnects.
	Inbox() <-chan []byte
}

// Frame is the client<->relay wire unit used by the websocket fabric.
// An empty DST means broadcast. SRC is assigned relay-side from the
// session identity; anything a client puts there is overwritten.
type Frame struct {
	DST  string          `json:"dst,omitempty"`
	SRC  string          `json:"src,omitempty"`
	Data json.RawMessage `json:"data"`
}
