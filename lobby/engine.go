// Package lobby implements the serverless table lobby protocol: table
// announcement, join negotiation with timeout, bounded discovery
// caching, and dispatch of table lifecycle notifications.
package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/adwski/p2p-lobby/model"
	"github.com/adwski/p2p-lobby/transport"
)

const defaultEventBuffer = 64

var (
	ErrNotConnected   = errors.New("lobby is not connected")
	ErrInvalidTable   = errors.New("table failed validity check")
	ErrNoMatchingSlot = errors.New("no required slot matches this peer")
	ErrJoinPending    = errors.New("join request already pending for this table")
	ErrJoinTimeout    = errors.New("join request timed out")
)

// Settings is the runtime-mutable configuration surface. None of the
// knobs require reconnecting.
type Settings struct {
	// CaptureTables toggles storing of discovered announcements.
	CaptureTables bool
	// MaxCachedTables bounds the announcement cache.
	MaxCachedTables int
	// MaxTablesPerPeer bounds cached entries per announcing peer.
	MaxTablesPerPeer int
	// BeaconInterval is the re-announcement period for owned tables.
	BeaconInterval time.Duration
	// JoinReplyTimeout is how long a join attempt waits for acceptance.
	JoinReplyTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		CaptureTables:    true,
		MaxCachedTables:  99,
		MaxTablesPerPeer: 5,
		BeaconInterval:   5 * time.Second,
		JoinReplyTimeout: 20 * time.Second,
	}
}

type Config struct {
	Logger    *zerolog.Logger
	Transport transport.Transport
	// Settings may be zero-valued; DefaultSettings is used then.
	Settings Settings
	// Clock is injectable for tests; real clock when nil.
	Clock clock.Clock
	// EventBuffer sizes the emitted-events channel.
	EventBuffer int
}

// Engine owns all protocol state of one peer: the registry of joined
// tables, pending join negotiations, the announcement cache and the
// beacons for owned tables. All mutation is serialized behind one
// mutex; handlers never wait on I/O while holding it.
type Engine struct {
	logger zerolog.Logger
	tr     transport.Transport
	clock  clock.Clock

	mx        sync.Mutex
	connected bool
	settings  Settings
	joined    []*model.Table
	pending   map[joinKey]*joinRequest
	cache     []cacheEntry
	beacons   map[tableKey]*beacon
	hasOpen   bool

	events chan model.Event
}

// tableKey identifies a table within a peer's view.
type tableKey struct {
	owner string
	id    string
	name  string
}

// joinKey scopes at-most-one pending join attempt.
type joinKey struct {
	owner string
	id    string
}

func keyOf(t *model.Table) tableKey {
	return tableKey{owner: t.OwnerID, id: t.TableID, name: t.Name}
}

func NewEngine(cfg Config) *Engine {
	settings := cfg.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	return &Engine{
		logger:   cfg.Logger.With().Str("component", "lobby").Logger(),
		tr:       cfg.Transport,
		clock:    clk,
		settings: settings,
		pending:  make(map[joinKey]*joinRequest),
		beacons:  make(map[tableKey]*beacon),
		events:   make(chan model.Event, buf),
	}
}

// Start connects the transport and begins processing inbound
// notifications until ctx is canceled or the transport inbox closes.
func (e *Engine) Start(ctx context.Context, endpoint string) error {
	if err := e.tr.Connect(ctx, endpoint); err != nil {
		return errors.Join(ErrNotConnected, err)
	}
	e.mx.Lock()
	e.connected = true
	e.mx.Unlock()

	go e.readLoop(ctx)

	e.logger.Info().Str("peer", e.tr.PeerID()).Msg("lobby started")
	return nil
}

func (e *Engine) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-e.tr.Inbox():
			if !ok {
				e.logger.Debug().Msg("transport inbox closed")
				return
			}
			e.handleFrame(raw)
		}
	}
}

// PeerID returns this peer's identifier on the transport.
func (e *Engine) PeerID() string { return e.tr.PeerID() }

// Events yields lobby events for the application. The channel is
// buffered; events are dropped (with a debug log) when the consumer
// does not keep up.
func (e *Engine) Events() <-chan model.Event { return e.events }

func (e *Engine) emit(ev model.Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Debug().Str("kind", ev.Kind).Msg("event dropped, consumer lagging")
	}
}

// Settings returns the current runtime settings.
func (e *Engine) Settings() Settings {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.settings
}

// SetCaptureMode toggles announcement capture. Takes effect on the
// next inbound announcement; needs no connectivity.
func (e *Engine) SetCaptureMode(enabled bool) {
	e.mx.Lock()
	e.settings.CaptureTables = enabled
	e.mx.Unlock()
}

func (e *Engine) SetMaxCachedTables(n int) {
	e.mx.Lock()
	if n > 0 {
		e.settings.MaxCachedTables = n
	}
	e.mx.Unlock()
}

func (e *Engine) SetMaxTablesPerPeer(n int) {
	e.mx.Lock()
	if n > 0 {
		e.settings.MaxTablesPerPeer = n
	}
	e.mx.Unlock()
}

// SetBeaconInterval applies to beacons started afterwards.
func (e *Engine) SetBeaconInterval(d time.Duration) {
	e.mx.Lock()
	if d > 0 {
		e.settings.BeaconInterval = d
	}
	e.mx.Unlock()
}

func (e *Engine) SetJoinReplyTimeout(d time.Duration) {
	e.mx.Lock()
	if d > 0 {
		e.settings.JoinReplyTimeout = d
	}
	e.mx.Unlock()
}

// recomputeOpenTables refreshes the "has open owned tables" flag.
// Conservative: true if any owned table still has required slots.
// Callers hold e.mx.
func (e *Engine) recomputeOpenTables() {
	self := e.tr.PeerID()
	e.hasOpen = false
	for _, t := range e.joined {
		if t.OwnerID == self && !t.Full() {
			e.hasOpen = true
			return
		}
	}
}
