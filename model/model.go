package model

// SlotWildcard is a required-slot entry that any peer may claim.
const SlotWildcard = "*"

// Table is the unit of group membership. A peer either owns a table
// (it created it) or joined someone else's. RequiredSlots holds the
// still-unfilled seats; a table with no required slots left is full.
type Table struct {
	OwnerID       string            `json:"ownerPeerId"`
	TableID       string            `json:"tableId"`
	Name          string            `json:"tableName"`
	RequiredSlots []string          `json:"requiredSlots"`
	JoinedPeers   []string          `json:"joinedPeers"`
	Info          map[string]string `json:"tableInfo"`
}

// Valid reports whether the table carries everything the protocol
// requires before any state mutation: non-empty owner and id, and
// present slot, member and info collections. Name may be empty.
func (t *Table) Valid() bool {
	if t == nil {
		return false
	}
	return t.OwnerID != "" && t.TableID != "" &&
		t.RequiredSlots != nil && t.JoinedPeers != nil && t.Info != nil
}

// Full reports whether every required slot has been consumed.
func (t *Table) Full() bool {
	return len(t.RequiredSlots) == 0
}

// Same reports identity equality: (tableId, tableName, ownerPeerId).
func (t *Table) Same(other *Table) bool {
	if t == nil || other == nil {
		return false
	}
	return t.TableID == other.TableID && t.Name == other.Name && t.OwnerID == other.OwnerID
}

// HasSlotFor reports whether some required slot is claimable by peerID,
// either by naming it explicitly or via a wildcard.
func (t *Table) HasSlotFor(peerID string) bool {
	for _, s := range t.RequiredSlots {
		if s == peerID || s == SlotWildcard {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Collections are always non-nil on the copy
// so a clone of a valid table stays valid.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{
		OwnerID:       t.OwnerID,
		TableID:       t.TableID,
		Name:          t.Name,
		RequiredSlots: cloneSlice(t.RequiredSlots),
		JoinedPeers:   cloneSlice(t.JoinedPeers),
		Info:          make(map[string]string, len(t.Info)),
	}
	for k, v := range t.Info {
		c.Info[k] = v
	}
	return c
}

func cloneSlice(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
