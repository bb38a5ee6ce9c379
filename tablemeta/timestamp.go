package tablemeta

import (
	"time"

	"github.com/google/uuid"
)

// Epoch breaks ties between timestamps minted independently by different
// peers: two peers racing at the same wall-clock microsecond still produce
// distinguishable epochs because each carries a fresh uuid.
type Epoch struct {
	WallMicros int64
	Nonce      uuid.UUID
}

// Timestamp totally orders directory advertisements by (epoch, log_index).
// A single epoch can be advanced through multiple log_index values without
// minting a new epoch (successive config changes to the same table under
// the same leader term).
type Timestamp struct {
	Epoch    Epoch
	LogIndex uint64
}

// NewEpoch mints a fresh epoch anchored to now, per the source's
// clock_t::get_real_time()-plus-fresh-uuid construction.
func NewEpoch(now time.Time) Epoch {
	return Epoch{WallMicros: now.UnixMicro(), Nonce: uuid.New()}
}

// NewTimestamp builds the initial timestamp for a freshly created table:
// log_index starts at zero.
func NewTimestamp(now time.Time) Timestamp {
	return Timestamp{Epoch: NewEpoch(now)}
}

// dropEpoch is the synthetic epoch used by MaxTimestamp: maximal wall time
// and the nil uuid, so it never loses a comparison to a real epoch even
// against another timestamp minted in the same microsecond.
var dropEpoch = Epoch{WallMicros: int64(^uint64(0) >> 1), Nonce: uuid.Nil}

// MaxTimestamp returns the synthetic "drop wins" timestamp: it supersedes
// every timestamp a live peer could ever mint, guaranteeing any in-flight
// rebalancing resolves in favor of deletion (§4.10).
func MaxTimestamp() Timestamp {
	return Timestamp{Epoch: dropEpoch, LogIndex: ^uint64(0)}
}

// compareEpoch orders two epochs: wall-clock microtime first, then the
// nonce as a tiebreaker (byte-lexicographic on the uuid). Ties (equal
// epochs) can only happen for the literal same epoch value.
func compareEpoch(a, b Epoch) int {
	switch {
	case a.WallMicros < b.WallMicros:
		return -1
	case a.WallMicros > b.WallMicros:
		return 1
	}
	for i := range a.Nonce {
		if a.Nonce[i] != b.Nonce[i] {
			if a.Nonce[i] < b.Nonce[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Supersedes reports whether t strictly outranks other: a later epoch
// always wins regardless of log_index; within the same epoch, the higher
// log_index wins.
func (t Timestamp) Supersedes(other Timestamp) bool {
	if c := compareEpoch(t.Epoch, other.Epoch); c != 0 {
		return c > 0
	}
	return t.LogIndex > other.LogIndex
}

// Equal reports bitwise equality of epoch and log index.
func (t Timestamp) Equal(other Timestamp) bool {
	return t.Epoch == other.Epoch && t.LogIndex == other.LogIndex
}
