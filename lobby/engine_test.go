package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/p2p-lobby/model"
	"github.com/adwski/p2p-lobby/transport/inproc"
)

func startPeer(t *testing.T, hub *inproc.Hub, id string) *Engine {
	t.Helper()
	logger := zerolog.Nop()
	tr := hub.NewTransportWithID(id)
	e := NewEngine(Config{Logger: &logger, Transport: tr})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.Start(ctx, ""))
	return e
}

func waitEvent(t *testing.T, e *Engine, kind string) model.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}

// Two peers negotiate a seat end to end: announcement, capture, join
// request, fulfilment, acceptance.
func TestTwoPeers_AnnounceJoinLeave(t *testing.T) {
	hub := inproc.NewHub()
	alice := startPeer(t, hub, "alice")
	bob := startPeer(t, hub, "bob")

	created, err := alice.CreateTable(CreateParams{
		Name:      "t1",
		OpenSeats: 1,
		Info:      map[string]string{"game": "holdem"},
		Announce:  true,
	})
	require.NoError(t, err)

	// bob discovers the table via the beacon's immediate announcement
	disc := waitEvent(t, bob, model.KindNewTable)
	require.True(t, disc.Table.Same(created))

	res, err := bob.JoinTable(disc.Table, 2*time.Second)
	require.NoError(t, err)

	// alice fulfils the request
	fulfil := waitEvent(t, alice, model.KindJoinTableRequest)
	assert.Equal(t, "bob", fulfil.From)

	// bob's pending join resolves accepted
	select {
	case r := <-res:
		require.NoError(t, r.Err)
		assert.ElementsMatch(t, []string{"alice", "bob"}, r.Table.JoinedPeers)
		assert.Empty(t, r.Table.RequiredSlots)
	case <-time.After(2 * time.Second):
		t.Fatal("join not resolved")
	}

	// both peers now hold the table with both members and no open slots
	for _, e := range []*Engine{alice, bob} {
		got := e.JoinedTables(Filter{TableID: strptr(created.TableID)})
		require.Len(t, got, 1)
		assert.ElementsMatch(t, []string{"alice", "bob"}, got[0].JoinedPeers)
		assert.Empty(t, got[0].RequiredSlots)
	}

	// bob says goodbye; alice drops him from the member list
	got := bob.JoinedTables(Filter{TableID: strptr(created.TableID)})
	require.Len(t, got, 1)
	ok, err := bob.LeaveTable(got[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, bob.JoinedTables(Filter{}))

	left := waitEvent(t, alice, model.KindLeaveTable)
	assert.Equal(t, "bob", left.From)
	assert.Equal(t, []string{"alice"}, left.Table.JoinedPeers)
}

func TestTwoPeers_TableMessage(t *testing.T) {
	hub := inproc.NewHub()
	alice := startPeer(t, hub, "alice")
	bob := startPeer(t, hub, "bob")

	created, err := alice.CreateTable(CreateParams{Name: "t1", OpenSeats: 1, Announce: true})
	require.NoError(t, err)

	disc := waitEvent(t, bob, model.KindNewTable)
	res, err := bob.JoinTable(disc.Table, 2*time.Second)
	require.NoError(t, err)
	r := <-res
	require.NoError(t, r.Err)

	ok, err := alice.SendToTable(created, []byte(`{"round":1}`))
	require.NoError(t, err)
	require.True(t, ok)

	msg := waitEvent(t, bob, model.KindTableMsg)
	assert.Equal(t, "alice", msg.From)
	assert.JSONEq(t, `{"round":1}`, string(msg.Message))
}

// A join against a silent owner resolves by timeout only.
func TestJoin_UnresponsiveOwner(t *testing.T) {
	hub := inproc.NewHub()
	bob := startPeer(t, hub, "bob")

	ghost := &model.Table{
		OwnerID:       "ghost",
		TableID:       "id-ghost",
		Name:          "t1",
		RequiredSlots: []string{model.SlotWildcard},
		JoinedPeers:   []string{"ghost"},
		Info:          map[string]string{},
	}
	res, err := bob.JoinTable(ghost, 100*time.Millisecond)
	require.NoError(t, err)

	select {
	case r := <-res:
		require.ErrorIs(t, r.Err, ErrJoinTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("join not resolved")
	}
	ev := waitEvent(t, bob, model.KindJoinTableTimeout)
	require.NotNil(t, ev.Table)
	assert.True(t, ev.Table.Same(ghost))
}
