// Package relay implements the websocket relay fabric: a session
// switch forwarding lobby frames between connected peers. It is a
// stand-in for an arbitrary p2p transport; the lobby protocol itself
// never depends on it.
package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adwski/p2p-lobby/model"
	"github.com/adwski/p2p-lobby/transport"
)

const defaultFwdTimeout = time.Second

// Switch tracks connected peer sessions and forwards frames between
// them, wrapping every delivery in the lobby envelope so receivers
// learn the sender identity.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	peers  map[string]chan<- []byte
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		peers:  make(map[string]chan<- []byte),
	}
}

// Connect registers a peer session. Peer ids are unique on the fabric;
// a second session for the same id is refused.
func (sw *Switch) Connect(peerID string, tx chan<- []byte) error {
	sw.mx.Lock()
	defer sw.mx.Unlock()
	if _, ok := sw.peers[peerID]; ok {
		return transport.ErrPeerExists
	}
	sw.peers[peerID] = tx
	sw.logger.Debug().Str("peer", peerID).Msg("peer connected")
	return nil
}

func (sw *Switch) Disconnect(peerID string) {
	sw.mx.Lock()
	delete(sw.peers, peerID)
	sw.mx.Unlock()
	sw.logger.Debug().Str("peer", peerID).Msg("peer disconnected")
}

// Peers returns the ids of the connected sessions.
func (sw *Switch) Peers() []string {
	sw.mx.RLock()
	defer sw.mx.RUnlock()
	out := make([]string, 0, len(sw.peers))
	for id := range sw.peers {
		out = append(out, id)
	}
	return out
}

// Forward delivers one inbound frame. An empty DST broadcasts to every
// peer except the sender.
func (sw *Switch) Forward(frame transport.Frame) {
	if frame.SRC == "" {
		sw.logger.Error().Msg("frame with empty src")
		return
	}
	env, err := model.MarshalEnvelope(frame.SRC, frame.Data)
	if err != nil {
		sw.logger.Error().Err(err).Str("src", frame.SRC).Msg("failed to build envelope")
		return
	}

	logger := sw.logger.With().Str("src", frame.SRC).Logger()

	sw.mx.RLock()
	defer sw.mx.RUnlock()

	if frame.DST == "" {
		delivered := false
		for id, tx := range sw.peers {
			if id == frame.SRC {
				continue
			}
			if send(env, tx, id, &logger) {
				delivered = true
			}
		}
		if !delivered {
			logger.Debug().Msg("broadcast did not reach anyone")
		}
		return
	}

	tx, ok := sw.peers[frame.DST]
	if !ok {
		logger.Debug().Str("dst", frame.DST).Msg("cannot forward, dst not found")
		return
	}
	send(env, tx, frame.DST, &logger)
}

func send(env []byte, tx chan<- []byte, dst string, logger *zerolog.Logger) bool {
	t := time.NewTimer(defaultFwdTimeout)
	defer t.Stop()
	select {
	case tx <- env:
		logger.Trace().Str("dst", dst).Msg("frame forwarded")
		return true
	case <-t.C:
		logger.Error().Str("dst", dst).Msg("dead session")
		return false
	}
}
