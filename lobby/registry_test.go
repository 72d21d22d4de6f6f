package lobby

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adwski/p2p-lobby/model"
)

func TestCreateTable_WildcardSeats(t *testing.T) {
	tr := newFakeTransport("alice")
	e := newTestEngine(t, tr, nil)

	tbl, err := e.CreateTable(CreateParams{Name: "t1", OpenSeats: 3})
	require.NoError(t, err)

	require.Len(t, tbl.RequiredSlots, 3)
	for _, s := range tbl.RequiredSlots {
		assert.Equal(t, model.SlotWildcard, s)
	}
	assert.Equal(t, []string{"alice"}, tbl.JoinedPeers)
	assert.Equal(t, "alice", tbl.OwnerID)
	assert.NotEmpty(t, tbl.TableID)
	assert.NotNil(t, tbl.Info)
	assert.True(t, tbl.Valid())
}

func TestCreateTable_ExplicitSlots(t *testing.T) {
	tr := newFakeTransport("alice")
	e := newTestEngine(t, tr, nil)

	tbl, err := e.CreateTable(CreateParams{
		Name:    "t1",
		Slots:   []string{"bob", model.SlotWildcard},
		TableID: "fixed-id",
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", tbl.TableID)
	assert.Equal(t, []string{"bob", model.SlotWildcard}, tbl.RequiredSlots)
}

func TestCreateTable_NotConnected(t *testing.T) {
	logger := zerolog.Nop()
	e := NewEngine(Config{Logger: &logger, Transport: newFakeTransport("alice")})

	_, err := e.CreateTable(CreateParams{Name: "t1", OpenSeats: 1})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestJoinedTables_Filters(t *testing.T) {
	tr := newFakeTransport("alice")
	e := newTestEngine(t, tr, nil)

	t1, err := e.CreateTable(CreateParams{Name: "poker", TableID: "id-1", OpenSeats: 1})
	require.NoError(t, err)
	_, err = e.CreateTable(CreateParams{Name: "poker", TableID: "id-2", OpenSeats: 1})
	require.NoError(t, err)
	_, err = e.CreateTable(CreateParams{Name: "chess", TableID: "id-3", OpenSeats: 1})
	require.NoError(t, err)

	assert.Len(t, e.JoinedTables(Filter{}), 3)
	assert.Len(t, e.JoinedTables(Filter{Name: strptr("poker")}), 2)
	assert.Len(t, e.JoinedTables(Filter{TableID: strptr("id-3")}), 1)
	assert.Len(t, e.JoinedTables(Filter{OwnerID: strptr("alice")}), 3)

	// all supplied filters must match; a hit on one does not save a
	// miss on another
	assert.Empty(t, e.JoinedTables(Filter{Name: strptr("poker"), TableID: strptr("id-3")}))
	assert.Empty(t, e.JoinedTables(Filter{Name: strptr("nope")}))

	// returned tables are defensive copies
	got := e.JoinedTables(Filter{TableID: strptr("id-1")})
	require.Len(t, got, 1)
	got[0].JoinedPeers[0] = "mallory"
	again := e.JoinedTables(Filter{TableID: strptr("id-1")})
	require.Len(t, again, 1)
	assert.Equal(t, t1.JoinedPeers, again[0].JoinedPeers)
}

func TestLeaveTable(t *testing.T) {
	tr := newFakeTransport("alice")
	e := newTestEngine(t, tr, nil)

	tbl, err := e.CreateTable(CreateParams{Name: "t1", OpenSeats: 1})
	require.NoError(t, err)

	// bob fills the open seat
	e.handleFrame(frameFor(t, "bob", model.KindJoinTableRequest, tbl))
	expectEvent(t, e, model.KindJoinTableRequest)
	sendsBefore := tr.sendCount()

	ok, err := e.LeaveTable(tbl)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, e.JoinedTables(Filter{}))

	// bob was notified
	require.Equal(t, sendsBefore+1, tr.sendCount())
	assert.Equal(t, []string{"bob"}, tr.lastSend().peers)

	// second leave finds nothing
	ok, err = e.LeaveTable(tbl)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeaveTable_InvalidTable(t *testing.T) {
	tr := newFakeTransport("alice")
	e := newTestEngine(t, tr, nil)

	ok, err := e.LeaveTable(&model.Table{TableID: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendToTable(t *testing.T) {
	tr := newFakeTransport("alice")
	e := newTestEngine(t, tr, nil)

	tbl, err := e.CreateTable(CreateParams{Name: "t1", OpenSeats: 2})
	require.NoError(t, err)
	e.handleFrame(frameFor(t, "bob", model.KindJoinTableRequest, tbl))
	expectEvent(t, e, model.KindJoinTableRequest)
	sendsBefore := tr.sendCount()

	ok, err := e.SendToTable(tbl, json.RawMessage(`"hi"`))
	require.NoError(t, err)
	assert.True(t, ok)
	require.Equal(t, sendsBefore+1, tr.sendCount())
	assert.Equal(t, []string{"bob"}, tr.lastSend().peers)

	// absent message fails closed
	ok, err = e.SendToTable(tbl, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	// invalid table fails closed
	ok, err = e.SendToTable(&model.Table{}, json.RawMessage(`"hi"`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendToTable_NotConnected(t *testing.T) {
	logger := zerolog.Nop()
	e := NewEngine(Config{Logger: &logger, Transport: newFakeTransport("alice")})

	tbl := &model.Table{
		OwnerID:       "alice",
		TableID:       "id-1",
		RequiredSlots: []string{},
		JoinedPeers:   []string{"alice", "bob"},
		Info:          map[string]string{},
	}
	_, err := e.SendToTable(tbl, json.RawMessage(`"hi"`))
	require.ErrorIs(t, err, ErrNotConnected)
}
