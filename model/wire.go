package model

import "encoding/json"

// Message kinds carried in the cpMsg discriminator.
const (
	KindNewTable         = "newtable"
	KindJoinTableRequest = "jointablerequest"
	KindJoinTable        = "jointable"
	KindTableMsg         = "tablemsg"
	KindLeaveTable       = "leavetable"

	// KindJoinTableTimeout never travels on the wire; it is emitted
	// locally when a join attempt expires.
	KindJoinTableTimeout = "jointabletimeout"
)

const (
	jsonRPCVersion     = "2.0"
	notificationMethod = "lobby"
)

// Envelope is the transport-level wrapper every inbound frame must
// carry: {"result":{"from":<peerId>,"data":<notification>}}. Frames
// that do not parse into this shape are not this protocol's concern.
type Envelope struct {
	Result *EnvelopeResult `json:"result"`
}

type EnvelopeResult struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// Notification is the JSON-RPC 2.0 notification payload inside an
// envelope. The protocol keeps its message body under data rather
// than params.
type Notification struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// LobbyMessage is the decoded notification body. Pointer fields keep
// absent-vs-empty distinguishable so validity checks can fail closed
// on messages that merely omit a collection.
type LobbyMessage struct {
	Kind          string             `json:"cpMsg"`
	OwnerID       string             `json:"ownerPeerId,omitempty"`
	TableID       string             `json:"tableId,omitempty"`
	Name          *string            `json:"tableName,omitempty"`
	RequiredSlots *[]string          `json:"requiredSlots,omitempty"`
	JoinedPeers   *[]string          `json:"joinedPeers,omitempty"`
	Info          *map[string]string `json:"tableInfo,omitempty"`
	Message       json.RawMessage    `json:"message,omitempty"`
}

// DecodeTable extracts the embedded table, applying the table validity
// check. ok is false when any required field is absent.
func (m *LobbyMessage) DecodeTable() (*Table, bool) {
	if m.OwnerID == "" || m.TableID == "" {
		return nil, false
	}
	if m.Name == nil || m.RequiredSlots == nil || m.JoinedPeers == nil || m.Info == nil {
		return nil, false
	}
	t := &Table{
		OwnerID:       m.OwnerID,
		TableID:       m.TableID,
		Name:          *m.Name,
		RequiredSlots: cloneSlice(*m.RequiredSlots),
		JoinedPeers:   cloneSlice(*m.JoinedPeers),
		Info:          *m.Info,
	}
	if t.Info == nil {
		return nil, false
	}
	return t, true
}

// MarshalTableMessage builds the notification payload for a
// table-carrying message kind.
func MarshalTableMessage(kind string, t *Table) ([]byte, error) {
	name := t.Name
	slots := cloneSlice(t.RequiredSlots)
	peers := cloneSlice(t.JoinedPeers)
	info := t.Info
	msg := LobbyMessage{
		Kind:          kind,
		OwnerID:       t.OwnerID,
		TableID:       t.TableID,
		Name:          &name,
		RequiredSlots: &slots,
		JoinedPeers:   &peers,
		Info:          &info,
	}
	return marshalNotification(&msg)
}

// MarshalTableMsg builds the notification payload for an opaque
// table-scoped message.
func MarshalTableMsg(message json.RawMessage) ([]byte, error) {
	return marshalNotification(&LobbyMessage{Kind: KindTableMsg, Message: message})
}

func marshalNotification(msg *LobbyMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Notification{
		Version: jsonRPCVersion,
		Method:  notificationMethod,
		Data:    data,
	})
}

// MarshalEnvelope wraps an outbound payload the way transports deliver
// it to receiving peers.
func MarshalEnvelope(from string, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(&Envelope{Result: &EnvelopeResult{From: from, Data: payload}})
}
