package lobby

import "github.com/adwski/p2p-lobby/model"

// cacheEntry is a discovered table plus the peer that announced it.
// Cache entries never alias registry tables.
type cacheEntry struct {
	from  string
	table *model.Table
}

// Announcement is the application-facing view of a cache entry.
type Announcement struct {
	From  string
	Table *model.Table
}

// captureTable stores a discovered announcement, newest first. Callers
// hold e.mx. Rejections: invalid table, duplicate (peer, tableId), or
// the announcing peer exhausted its per-peer quota. When the cache
// grows past its capacity the single oldest entry is evicted.
//
// The cache deliberately privileges recency and peer diversity over
// completeness.
func (e *Engine) captureTable(from string, t *model.Table) bool {
	if !t.Valid() {
		return false
	}
	perPeer := 0
	for _, ent := range e.cache {
		if ent.from != from {
			continue
		}
		if ent.table.TableID == t.TableID {
			return false
		}
		perPeer++
	}
	if perPeer >= e.settings.MaxTablesPerPeer {
		return false
	}

	e.cache = append([]cacheEntry{{from: from, table: t.Clone()}}, e.cache...)
	if len(e.cache) > e.settings.MaxCachedTables {
		e.cache = e.cache[:len(e.cache)-1]
	}
	return true
}

// Announcements returns defensive copies of the cached announcements,
// newest first.
func (e *Engine) Announcements() []Announcement {
	e.mx.Lock()
	defer e.mx.Unlock()
	out := make([]Announcement, 0, len(e.cache))
	for _, ent := range e.cache {
		out = append(out, Announcement{From: ent.from, Table: ent.table.Clone()})
	}
	return out
}

// ClearAnnouncements drops the whole cache.
func (e *Engine) ClearAnnouncements() {
	e.mx.Lock()
	e.cache = nil
	e.mx.Unlock()
}
