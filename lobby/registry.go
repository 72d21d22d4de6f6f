package lobby

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/adwski/p2p-lobby/model"
)

// CreateParams describes a table to create. Slots takes precedence
// over OpenSeats when both are set.
type CreateParams struct {
	Name string
	// OpenSeats creates that many wildcard slots.
	OpenSeats int
	// Slots is an explicit ordered seat sequence of peer ids and/or
	// model.SlotWildcard entries.
	Slots []string
	Info  map[string]string
	// TableID is generated when empty.
	TableID string
	// Announce starts a beacon re-broadcasting the table while it has
	// open slots.
	Announce bool
}

// CreateTable registers a new locally owned table. The local peer is
// always its first joined member. Fails when the lobby is not
// connected.
func (e *Engine) CreateTable(p CreateParams) (*model.Table, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.connected {
		return nil, ErrNotConnected
	}

	slots := make([]string, 0, len(p.Slots)+p.OpenSeats)
	if p.Slots != nil {
		slots = append(slots, p.Slots...)
	} else {
		for i := 0; i < p.OpenSeats; i++ {
			slots = append(slots, model.SlotWildcard)
		}
	}
	info := p.Info
	if info == nil {
		info = make(map[string]string)
	}
	id := p.TableID
	if id == "" {
		id = uuid.NewString()
	}

	t := &model.Table{
		OwnerID:       e.tr.PeerID(),
		TableID:       id,
		Name:          p.Name,
		RequiredSlots: slots,
		JoinedPeers:   []string{e.tr.PeerID()},
		Info:          info,
	}
	e.joined = append(e.joined, t)
	e.recomputeOpenTables()

	if p.Announce {
		e.startBeacon(keyOf(t))
	}

	e.logger.Debug().
		Str("tableId", t.TableID).
		Str("tableName", t.Name).
		Int("slots", len(t.RequiredSlots)).
		Msg("table created")
	return t.Clone(), nil
}

// LeaveTable removes a previously joined table, notifying every other
// current member before returning. Returns false when the table is
// invalid or not part of the registry.
func (e *Engine) LeaveTable(t *model.Table) (bool, error) {
	e.mx.Lock()
	if !e.connected {
		e.mx.Unlock()
		return false, ErrNotConnected
	}
	if !t.Valid() {
		e.mx.Unlock()
		return false, nil
	}
	idx := e.findJoined(t)
	if idx < 0 {
		e.mx.Unlock()
		return false, nil
	}
	stored := e.joined[idx]
	e.joined = append(e.joined[:idx], e.joined[idx+1:]...)
	e.stopBeacon(keyOf(stored))
	e.recomputeOpenTables()

	recipients := othersOf(stored, e.tr.PeerID())
	payload, err := model.MarshalTableMessage(model.KindLeaveTable, stored)
	e.mx.Unlock()

	if err == nil && len(recipients) > 0 {
		if err = e.tr.Send(payload, recipients); err != nil {
			e.logger.Error().Err(err).Str("tableId", stored.TableID).Msg("failed to send leave notification")
		}
	}
	e.logger.Debug().Str("tableId", stored.TableID).Msg("left table")
	return true, nil
}

// Filter selects joined tables. Nil fields are unset; a table must
// match every supplied field to be returned.
type Filter struct {
	Name    *string
	TableID *string
	OwnerID *string
}

// JoinedTables returns defensive copies of the joined tables matching
// the filter. A zero filter returns everything.
func (e *Engine) JoinedTables(f Filter) []*model.Table {
	e.mx.Lock()
	defer e.mx.Unlock()
	out := make([]*model.Table, 0, len(e.joined))
	for _, t := range e.joined {
		if f.Name != nil && t.Name != *f.Name {
			continue
		}
		if f.TableID != nil && t.TableID != *f.TableID {
			continue
		}
		if f.OwnerID != nil && t.OwnerID != *f.OwnerID {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// SendToTable delivers an opaque message to every joined member of the
// table except the local peer. Invalid input fails closed with false;
// a disconnected lobby is an error.
func (e *Engine) SendToTable(t *model.Table, message json.RawMessage) (bool, error) {
	if !t.Valid() || len(message) == 0 {
		return false, nil
	}
	e.mx.Lock()
	if !e.connected {
		e.mx.Unlock()
		return false, ErrNotConnected
	}
	target := t
	if idx := e.findJoined(t); idx >= 0 {
		target = e.joined[idx]
	}
	recipients := othersOf(target, e.tr.PeerID())
	e.mx.Unlock()

	payload, err := model.MarshalTableMsg(message)
	if err != nil {
		return false, nil
	}
	if len(recipients) == 0 {
		return true, nil
	}
	if err = e.tr.Send(payload, recipients); err != nil {
		e.logger.Error().Err(err).Str("tableId", t.TableID).Msg("failed to send table message")
		return false, nil
	}
	return true, nil
}

// findJoined locates a registry entry by table identity. Callers hold
// e.mx. Returns -1 when absent.
func (e *Engine) findJoined(t *model.Table) int {
	for i, j := range e.joined {
		if j.Same(t) {
			return i
		}
	}
	return -1
}

// ownedTable returns the registry entry for an owned table, nil when
// gone. Callers hold e.mx.
func (e *Engine) ownedTable(key tableKey) *model.Table {
	for _, t := range e.joined {
		if t.OwnerID == key.owner && t.TableID == key.id && t.Name == key.name {
			return t
		}
	}
	return nil
}

func othersOf(t *model.Table, self string) []string {
	out := make([]string, 0, len(t.JoinedPeers))
	for _, p := range t.JoinedPeers {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}
