package model

import "encoding/json"

// Event is what the lobby hands to the application after processing an
// inbound notification (or, for jointabletimeout, after a join attempt
// expired locally).
type Event struct {
	// Kind is one of the message kind constants.
	Kind string
	// From is the peer the originating notification came from.
	// Empty for locally generated events.
	From string
	// Table carries the table snapshot for table-bearing kinds.
	Table *Table
	// Message carries the opaque payload of a tablemsg.
	Message json.RawMessage
}
