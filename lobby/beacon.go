package lobby

import (
	"sync"
	"time"

	"github.com/adwski/p2p-lobby/model"
)

// beacon periodically re-broadcasts an owned table while it still has
// open slots. It terminates for good the first time it observes the
// table full or gone; announcement is never resumed for a table.
type beacon struct {
	stop chan struct{}
	once sync.Once
}

func (b *beacon) cancel() {
	b.once.Do(func() { close(b.stop) })
}

// startBeacon launches the announcement loop for an owned table. The
// first announcement fires immediately, not after the first interval.
// Callers hold e.mx.
func (e *Engine) startBeacon(key tableKey) {
	if _, exists := e.beacons[key]; exists {
		return
	}
	b := &beacon{stop: make(chan struct{})}
	e.beacons[key] = b
	go e.runBeacon(key, b, e.settings.BeaconInterval)
}

// stopBeacon cancels the beacon for key, if any. Callers hold e.mx.
// Safe to call from handlers that just emptied the table's slots; the
// beacon goroutine also self-cancels on its next observation, so both
// paths are idempotent.
func (e *Engine) stopBeacon(key tableKey) {
	if b, ok := e.beacons[key]; ok {
		delete(e.beacons, key)
		b.cancel()
	}
}

func (e *Engine) runBeacon(key tableKey, b *beacon, interval time.Duration) {
	if !e.announce(key, b) {
		return
	}
	ticker := e.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if !e.announce(key, b) {
				return
			}
		}
	}
}

// announce broadcasts the table's current snapshot. Returns false when
// the beacon should terminate: the table is gone, full, or canceled.
func (e *Engine) announce(key tableKey, b *beacon) bool {
	e.mx.Lock()
	select {
	case <-b.stop:
		e.mx.Unlock()
		return false
	default:
	}
	t := e.ownedTable(key)
	if t == nil || t.Full() {
		delete(e.beacons, key)
		e.mx.Unlock()
		b.cancel()
		return false
	}
	payload, err := model.MarshalTableMessage(model.KindNewTable, t)
	e.mx.Unlock()

	if err != nil {
		e.logger.Error().Err(err).Str("tableId", key.id).Msg("failed to encode announcement")
		return true
	}
	if err = e.tr.Broadcast(payload); err != nil {
		e.logger.Error().Err(err).Str("tableId", key.id).Msg("failed to broadcast announcement")
	}
	return true
}
