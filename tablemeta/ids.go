// Package tablemeta implements the table metadata client: a directory
// mirror plus a fan-out RPC surface for discovering and mutating per-table
// configuration across cluster peers.
package tablemeta

import "github.com/google/uuid"

// PeerID identifies a live process in the cluster. It is ephemeral: a
// restarted process gets a new PeerID even if it comes back up as the same
// ServerID.
type PeerID uuid.UUID

func (p PeerID) String() string { return uuid.UUID(p).String() }

// ServerID identifies a data-serving node across restarts. Distinct from
// PeerID at the type level so the two id-spaces cannot be confused at a
// call site — the source keeps them as separate C++ types for the same
// reason.
type ServerID uuid.UUID

func (s ServerID) String() string { return uuid.UUID(s).String() }

// TableID identifies a table for its entire lifetime, from create to drop.
type TableID uuid.UUID

func (t TableID) String() string { return uuid.UUID(t).String() }

// RaftMemberID identifies one voting member of a table's Raft group.
type RaftMemberID uuid.UUID

func (r RaftMemberID) String() string { return uuid.UUID(r).String() }

// NewPeerID, NewServerID, NewTableID, NewRaftMemberID generate fresh
// random ids via google/uuid, never math/rand.
func NewPeerID() PeerID             { return PeerID(uuid.New()) }
func NewServerID() ServerID         { return ServerID(uuid.New()) }
func NewTableID() TableID           { return TableID(uuid.New()) }
func NewRaftMemberID() RaftMemberID { return RaftMemberID(uuid.New()) }
