package tablemeta

import "context"

// Address is an opaque, comparable mailbox address. Both tablemeta/peertest
// (in-process) and the mailbox package (over netio) hand these out; the
// client never inspects one, only threads it through Send calls.
type Address interface{}

// Transport is the mailbox contract consumed by the client (§6). It is
// satisfied by tablemeta/peertest for unit tests and by the mailbox
// package for a real over-the-wire deployment.
type Transport interface {
	// Send delivers msg to addr, fire-and-forget. A delivery failure that
	// isn't attributable to the peer being gone is a programming error in
	// this system, not a runtime condition the caller classifies.
	Send(addr Address, msg any) error

	// DisconnectWatcher returns a channel closed exactly once, the moment
	// peer is known to be lost. Watching a peer that is already gone
	// returns an already-closed channel.
	DisconnectWatcher(peer PeerID) <-chan struct{}

	// NewReplyMailbox allocates a one-shot reply address. The returned
	// channel receives at most one value; cancel releases the mailbox
	// early if no reply is expected anymore (e.g. after a disconnect).
	NewReplyMailbox() (addr Address, replies <-chan any, cancel func())
}

// ActionRequest is the wire shape sent to a peer's action mailbox by
// create and drop (§6, §4.9, §4.10).
type ActionRequest struct {
	TableID   TableID
	Timestamp Timestamp
	IsDrop    bool
	MemberID  *RaftMemberID
	State     *RaftPersistentState
	ReplyAddr Address
}

// ActionReply is the empty ack returned by a peer's action mailbox.
type ActionReply struct{}

// GetConfigRequest is the wire shape sent to a peer's get_config mailbox.
// TableID nil means "all tables this peer hosts" (§4.8 list_configs).
type GetConfigRequest struct {
	TableID   *TableID
	ReplyAddr Address
}

// GetConfigReply carries zero or more table configs keyed by id; §4.7
// step 5 treats an empty map as "no longer hosted".
type GetConfigReply struct {
	Configs map[TableID]TableConfigAndShards
}

// SetConfigRequest is the wire shape sent to the leader's set_config
// mailbox.
type SetConfigRequest struct {
	TableID   TableID
	NewConfig TableConfigAndShards
	ReplyAddr Address
}

// SetConfigReply carries the new timestamp the leader committed, or nil if
// the change did not happen (§4.11 step 5).
type SetConfigReply struct {
	NewTimestamp *Timestamp
}

// waitReplyDisconnectCtx blocks until one of the three sources fires,
// returning which.
// Used throughout the RPC paths to join (reply ∨ disconnect ∨ interruptor).
type waitOutcome int

const (
	waitReply waitOutcome = iota
	waitDisconnect
	waitInterrupted
)

func (o waitOutcome) String() string {
	switch o {
	case waitReply:
		return "reply"
	case waitDisconnect:
		return "disconnect"
	case waitInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

func waitReplyDisconnectCtx(ctx context.Context, replies <-chan any, disconnected <-chan struct{}) (any, waitOutcome) {
	select {
	case v := <-replies:
		return v, waitReply
	case <-disconnected:
		return nil, waitDisconnect
	case <-ctx.Done():
		return nil, waitInterrupted
	}
}
