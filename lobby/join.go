package lobby

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/adwski/p2p-lobby/model"
)

// JoinResult resolves an asynchronous join attempt.
type JoinResult struct {
	// Table is the accepted table as broadcast by its owner.
	Table *model.Table
	Err   error
}

// joinRequest is one outbound join negotiation: pending until a
// matching jointable arrives or the timer fires, whichever comes
// first.
type joinRequest struct {
	table  *model.Table
	result chan JoinResult
	timer  *clock.Timer
}

// JoinTable asks the table's owner for a seat. Synchronous failures
// (disconnected lobby, invalid table, no claimable slot, duplicate
// attempt) return an error immediately and send nothing. Otherwise the
// returned channel resolves exactly once: with the accepted table, or
// with ErrJoinTimeout when the owner does not answer within timeout.
// A timeout <= 0 uses the configured JoinReplyTimeout. There is no
// explicit rejection in this protocol; silence is the only no.
func (e *Engine) JoinTable(t *model.Table, timeout time.Duration) (<-chan JoinResult, error) {
	e.mx.Lock()
	if !e.connected {
		e.mx.Unlock()
		return nil, ErrNotConnected
	}
	if !t.Valid() {
		e.mx.Unlock()
		return nil, ErrInvalidTable
	}
	if !t.HasSlotFor(e.tr.PeerID()) {
		e.mx.Unlock()
		return nil, ErrNoMatchingSlot
	}
	key := joinKey{owner: t.OwnerID, id: t.TableID}
	if _, exists := e.pending[key]; exists {
		e.mx.Unlock()
		return nil, ErrJoinPending
	}
	if timeout <= 0 {
		timeout = e.settings.JoinReplyTimeout
	}

	req := &joinRequest{
		table:  t.Clone(),
		result: make(chan JoinResult, 1),
	}
	req.timer = e.clock.AfterFunc(timeout, func() { e.expireJoin(key) })
	e.pending[key] = req

	payload, err := model.MarshalTableMessage(model.KindJoinTableRequest, req.table)
	e.mx.Unlock()
	if err != nil {
		e.dropPending(key)
		return nil, err
	}
	if err = e.tr.Send(payload, []string{t.OwnerID}); err != nil {
		e.dropPending(key)
		return nil, err
	}

	e.logger.Debug().
		Str("tableId", t.TableID).
		Str("owner", t.OwnerID).
		Dur("timeout", timeout).
		Msg("join request sent")
	return req.result, nil
}

// acceptJoin resolves a pending request against an incoming jointable
// update. Callers hold e.mx; the result delivery and event emission
// happen inline since both are non-blocking.
func (e *Engine) acceptJoin(key joinKey, update *model.Table) bool {
	req, ok := e.pending[key]
	if !ok || req.table.Name != update.Name {
		return false
	}
	req.timer.Stop()
	delete(e.pending, key)

	e.joined = append(e.joined, update.Clone())
	e.recomputeOpenTables()

	req.result <- JoinResult{Table: update.Clone()}
	e.logger.Debug().
		Str("tableId", update.TableID).
		Str("owner", update.OwnerID).
		Msg("join accepted")
	return true
}

// expireJoin runs from the timeout timer. The request may already be
// gone if acceptance raced the timer; that is a no-op.
func (e *Engine) expireJoin(key joinKey) {
	e.mx.Lock()
	req, ok := e.pending[key]
	if !ok {
		e.mx.Unlock()
		return
	}
	delete(e.pending, key)
	e.mx.Unlock()

	req.result <- JoinResult{Err: ErrJoinTimeout}
	e.emit(model.Event{Kind: model.KindJoinTableTimeout, Table: req.table})
	e.logger.Debug().
		Str("tableId", key.id).
		Str("owner", key.owner).
		Msg("join request timed out")
}

// dropPending removes a request that never made it onto the wire.
func (e *Engine) dropPending(key joinKey) {
	e.mx.Lock()
	if req, ok := e.pending[key]; ok {
		req.timer.Stop()
		delete(e.pending, key)
	}
	e.mx.Unlock()
}
