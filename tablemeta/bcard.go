package tablemeta

// TableMetaManagerBcard is the per-peer business card advertised for the
// table-manager role: three mailbox addresses a client can send to.
type TableMetaManagerBcard struct {
	ServerID         ServerID
	GetConfigMailbox Address
	SetConfigMailbox Address
	ActionMailbox    Address
}

// TableMetaBcard is the per-(peer, table) advertisement mirrored into the
// directory: enough to answer lookups and to pick a fan-out target without
// touching the peer.
type TableMetaBcard struct {
	Database   string
	Name       string
	PrimaryKey string
	Timestamp  Timestamp
	IsLeader   bool
}

// ShardConfig lists the replica set responsible for one shard of a table.
type ShardConfig struct {
	Replicas []ServerID
}

// TableConfigAndShards is the full per-table configuration payload
// exchanged over get_config/set_config/action mailboxes.
type TableConfigAndShards struct {
	Database   string
	Name       string
	PrimaryKey string
	Shards     []ShardConfig
}

// ReplicaSet returns the union of every shard's replicas, deduplicated,
// per §4.9 step 3 ("derive the replica set: union of replicas across all
// shards").
func (c TableConfigAndShards) ReplicaSet() []ServerID {
	seen := make(map[ServerID]struct{})
	var out []ServerID
	for _, shard := range c.Shards {
		for _, r := range shard.Replicas {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// RaftConfig is the minimal Raft configuration payload that flows through
// this client: only the voting member set, nothing about Raft's own
// internal operation (out of scope, §1).
type RaftConfig struct {
	Voters []RaftMemberID
}

// RaftPersistentState is the persisted-state payload handed to a newly
// created replica's action mailbox. TableConfig carries the full
// submitted config alongside the raft membership: the source's
// table_raft_state_t embeds the create call's initial_config directly
// (table_meta_client.cc's create() sets raft_state.config = initial_config
// before building raft_persistent_state_t), which is how a newly joining
// replica learns the table's database/name/primary_key/shards without
// action_mailbox needing a separate field for them.
type RaftPersistentState struct {
	TableConfig TableConfigAndShards
	Config      RaftConfig
}
