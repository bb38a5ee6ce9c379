package tablemeta

import "sync"

// PeerTableKey identifies one peer's advertisement of one table in the raw
// directory watchable, before reduction.
type PeerTableKey struct {
	Peer  PeerID
	Table TableID
}

// ReducedTable is the per-table view produced by reducing every peer's
// advertisement of that table (§3, §4.5).
type ReducedTable struct {
	Witnesses  map[PeerID]struct{}
	Database   string
	Name       string
	PrimaryKey string
	Timestamp  Timestamp
}

// HasWitness reports whether peer currently advertises this table.
func (r ReducedTable) HasWitness(p PeerID) bool {
	_, ok := r.Witnesses[p]
	return ok
}

func cloneReducedTable(r ReducedTable) ReducedTable {
	w := make(map[PeerID]struct{}, len(r.Witnesses))
	for k := range r.Witnesses {
		w[k] = struct{}{}
	}
	r.Witnesses = w
	return r
}

// Directory mirrors two cluster-wide advertisements into locally readable
// structures: per-(peer, table) rows reduced into a per-table view keyed by
// TableID, and per-peer table-manager business cards. It owns a single
// background goroutine that applies raw deltas into the reduction, so
// readers never block a writer and vice versa (§4.5, §5).
type Directory struct {
	Raw           *Watchable[PeerTableKey, TableMetaBcard]
	ManagerBcards *Watchable[PeerID, TableMetaManagerBcard]

	mu     sync.RWMutex
	tables map[TableID]ReducedTable

	reduced *Watchable[TableID, ReducedTable]
	deltas  chan Delta[PeerTableKey, TableMetaBcard]
	done    chan struct{}
}

// NewDirectory constructs a Directory and starts its reduction goroutine.
func NewDirectory() *Directory {
	d := &Directory{
		Raw:           NewWatchable[PeerTableKey, TableMetaBcard](),
		ManagerBcards: NewWatchable[PeerID, TableMetaManagerBcard](),
		tables:        make(map[TableID]ReducedTable),
		reduced:       NewWatchable[TableID, ReducedTable](),
		deltas:        make(chan Delta[PeerTableKey, TableMetaBcard], 1024),
		done:          make(chan struct{}),
	}
	d.Raw.Subscribe(d.deltas)
	go d.run()
	return d
}

func (d *Directory) run() {
	for {
		select {
		case delta := <-d.deltas:
			d.applyDelta(delta)
		case <-d.done:
			return
		}
	}
}

// applyDelta implements the §4.5 reduction rules.
//
// Open question (§9, preserved verbatim, not silently fixed): on a
// superseding update this overwrites Database, Name, and Timestamp but
// never PrimaryKey. This assumes a table's primary key is immutable after
// creation; nothing here enforces that assumption, it is just carried
// forward from whichever witness happened to arrive first.
func (d *Directory) applyDelta(delta Delta[PeerTableKey, TableMetaBcard]) {
	d.mu.Lock()
	entry, exists := d.tables[delta.Key.Table]
	if exists {
		entry = cloneReducedTable(entry)
	} else {
		entry = ReducedTable{Witnesses: make(map[PeerID]struct{})}
	}

	if delta.Ok {
		entry.Witnesses[delta.Key.Peer] = struct{}{}
		if !exists || delta.Value.Timestamp.Supersedes(entry.Timestamp) {
			entry.Database = delta.Value.Database
			entry.Name = delta.Value.Name
			entry.Timestamp = delta.Value.Timestamp
			if !exists {
				entry.PrimaryKey = delta.Value.PrimaryKey
			}
		}
	} else {
		delete(entry.Witnesses, delta.Key.Peer)
	}

	if len(entry.Witnesses) == 0 {
		delete(d.tables, delta.Key.Table)
		d.mu.Unlock()
		d.reduced.Delete(delta.Key.Table)
		return
	}
	d.tables[delta.Key.Table] = entry
	d.mu.Unlock()
	d.reduced.Set(delta.Key.Table, cloneReducedTable(entry))
}

// Reduced exposes the per-table reduction as a Watchable, for lookups and
// run_key_until_satisfied waits.
func (d *Directory) Reduced() *Watchable[TableID, ReducedTable] { return d.reduced }

// Advertise publishes peer's advertisement of table, used by table-manager
// responders (production mailbox handlers or tablemeta/peertest).
func (d *Directory) Advertise(peer PeerID, table TableID, bcard TableMetaBcard) {
	d.Raw.Set(PeerTableKey{Peer: peer, Table: table}, bcard)
}

// Withdraw removes peer's advertisement of table, e.g. on drop or on peer
// disconnect.
func (d *Directory) Withdraw(peer PeerID, table TableID) {
	d.Raw.Delete(PeerTableKey{Peer: peer, Table: table})
}

// Close stops the reduction goroutine. Safe to call once.
func (d *Directory) Close() { close(d.done) }
