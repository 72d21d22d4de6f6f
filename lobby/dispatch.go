package lobby

import (
	"encoding/json"

	"github.com/adwski/p2p-lobby/model"
)

// handleFrame validates one inbound transport frame and routes it to
// the matching handler. Anything that does not parse into a lobby
// notification is silently dropped: peers on an open fabric are
// expected to emit unrelated traffic.
func (e *Engine) handleFrame(raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Result == nil ||
		env.Result.From == "" || len(env.Result.Data) == 0 {
		e.logger.Trace().Msg("frame is not a lobby envelope")
		return
	}
	var note model.Notification
	if err := json.Unmarshal(env.Result.Data, &note); err != nil || len(note.Data) == 0 {
		e.logger.Trace().Str("from", env.Result.From).Msg("envelope carries no notification")
		return
	}
	var msg model.LobbyMessage
	if err := json.Unmarshal(note.Data, &msg); err != nil || msg.Kind == "" {
		e.logger.Trace().Str("from", env.Result.From).Msg("notification carries no message kind")
		return
	}

	from := env.Result.From
	switch msg.Kind {
	case model.KindNewTable:
		e.handleNewTable(from, &msg)
	case model.KindJoinTableRequest:
		e.handleJoinTableRequest(from, &msg)
	case model.KindJoinTable:
		e.handleJoinTable(from, &msg)
	case model.KindTableMsg:
		e.handleTableMsg(from, &msg)
	case model.KindLeaveTable:
		e.handleLeaveTable(from, &msg)
	default:
		e.logger.Trace().Str("from", from).Str("kind", msg.Kind).Msg("unrecognized message kind")
	}
}

// handleNewTable captures a discovered table announcement. The
// discovery event fires only when the cache actually accepted it.
func (e *Engine) handleNewTable(from string, msg *model.LobbyMessage) {
	t, ok := msg.DecodeTable()
	if !ok {
		return
	}
	e.mx.Lock()
	if !e.settings.CaptureTables {
		e.mx.Unlock()
		return
	}
	captured := e.captureTable(from, t)
	e.mx.Unlock()

	if captured {
		e.logger.Debug().Str("from", from).Str("tableId", t.TableID).Msg("table captured")
		e.emit(model.Event{Kind: model.KindNewTable, From: from, Table: t})
	}
}

// handleJoinTableRequest fills slots on locally owned tables. A single
// request consumes every slot claimable by the requester (named
// entries and wildcards alike); the requester is appended to the
// member list once per table. Each mutated table is re-broadcast to
// its current members as a jointable update.
func (e *Engine) handleJoinTableRequest(from string, msg *model.LobbyMessage) {
	reqTable, ok := msg.DecodeTable()
	if !ok {
		return
	}

	type outbound struct {
		payload    []byte
		recipients []string
		snapshot   *model.Table
	}
	var updates []outbound

	e.mx.Lock()
	if !e.hasOpen {
		e.mx.Unlock()
		return
	}
	self := e.tr.PeerID()
	for _, t := range e.joined {
		if t.OwnerID != self || t.TableID != reqTable.TableID || t.Name != reqTable.Name {
			continue
		}
		remaining := make([]string, 0, len(t.RequiredSlots))
		consumed := false
		for _, s := range t.RequiredSlots {
			if s == from || s == model.SlotWildcard {
				consumed = true
				continue
			}
			remaining = append(remaining, s)
		}
		if !consumed {
			continue
		}
		t.RequiredSlots = remaining
		t.JoinedPeers = append(t.JoinedPeers, from)
		if t.Full() {
			e.stopBeacon(keyOf(t))
		}

		payload, err := model.MarshalTableMessage(model.KindJoinTable, t)
		if err != nil {
			e.logger.Error().Err(err).Str("tableId", t.TableID).Msg("failed to encode join update")
			continue
		}
		updates = append(updates, outbound{
			payload:    payload,
			recipients: othersOf(t, self),
			snapshot:   t.Clone(),
		})
	}
	e.recomputeOpenTables()
	e.mx.Unlock()

	for _, u := range updates {
		if len(u.recipients) > 0 {
			if err := e.tr.Send(u.payload, u.recipients); err != nil {
				e.logger.Error().Err(err).Str("tableId", u.snapshot.TableID).Msg("failed to send join update")
			}
		}
		e.logger.Debug().Str("from", from).Str("tableId", u.snapshot.TableID).Msg("join request fulfilled")
		e.emit(model.Event{Kind: model.KindJoinTableRequest, From: from, Table: u.snapshot})
	}
}

// handleJoinTable applies a table update from its owner. If the table
// is already in the registry the stored copy is replaced (another peer
// joined); otherwise a matching pending join attempt, if any, resolves
// as accepted.
func (e *Engine) handleJoinTable(from string, msg *model.LobbyMessage) {
	t, ok := msg.DecodeTable()
	if !ok {
		return
	}
	e.mx.Lock()
	for i, j := range e.joined {
		if j.TableID == t.TableID && j.Name == t.Name {
			e.joined[i] = t.Clone()
			e.recomputeOpenTables()
			e.mx.Unlock()
			e.logger.Debug().Str("tableId", t.TableID).Msg("joined table updated")
			e.emit(model.Event{Kind: model.KindJoinTable, From: from, Table: t})
			return
		}
	}
	accepted := e.acceptJoin(joinKey{owner: t.OwnerID, id: t.TableID}, t)
	e.mx.Unlock()

	if accepted {
		e.emit(model.Event{Kind: model.KindJoinTable, From: from, Table: t})
	}
}

// handleTableMsg passes the opaque payload through verbatim. No state
// is touched.
func (e *Engine) handleTableMsg(from string, msg *model.LobbyMessage) {
	if len(msg.Message) == 0 {
		return
	}
	e.emit(model.Event{Kind: model.KindTableMsg, From: from, Message: msg.Message})
}

// handleLeaveTable removes the departing peer from the matching joined
// table's member list.
func (e *Engine) handleLeaveTable(from string, msg *model.LobbyMessage) {
	t, ok := msg.DecodeTable()
	if !ok {
		return
	}
	e.mx.Lock()
	idx := e.findJoined(t)
	if idx < 0 {
		e.mx.Unlock()
		return
	}
	stored := e.joined[idx]
	members := make([]string, 0, len(stored.JoinedPeers))
	for _, p := range stored.JoinedPeers {
		if p != from {
			members = append(members, p)
		}
	}
	stored.JoinedPeers = members
	snapshot := stored.Clone()
	e.mx.Unlock()

	e.logger.Debug().Str("from", from).Str("tableId", t.TableID).Msg("peer left table")
	e.emit(model.Event{Kind: model.KindLeaveTable, From: from, Table: snapshot})
}
