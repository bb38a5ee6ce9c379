package tablemeta

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// bcardCacheEntry pairs a cached manager business card with when it was
// resolved, per the DOMAIN STACK's supplemented data model.
type bcardCacheEntry struct {
	bcard      TableMetaManagerBcard
	resolvedAt time.Time
}

// bcardCache is a bounded LRU in front of Directory.ManagerBcards, used by
// get_config/drop/set_config to avoid a directory scan
// on every RPC. Entries are invalidated whenever the directory delivers a
// delta for that peer, so a disconnect/rejoin can never serve a stale
// mailbox address (§8 scenario 9).
type bcardCache struct {
	c *lru.Cache[PeerID, bcardCacheEntry]
}

func newBcardCache(size int) *bcardCache {
	c, err := lru.New[PeerID, bcardCacheEntry](size)
	if err != nil {
		// Only invalid (<=0) sizes fail construction; NewClient replaces a
		// Config.BcardCacheSize <= 0 with 256, so this is a programming error.
		panic(err)
	}
	return &bcardCache{c: c}
}

func (b *bcardCache) get(peer PeerID) (TableMetaManagerBcard, bool) {
	e, ok := b.c.Get(peer)
	if !ok {
		return TableMetaManagerBcard{}, false
	}
	return e.bcard, true
}

func (b *bcardCache) put(peer PeerID, bcard TableMetaManagerBcard, now time.Time) {
	b.c.Add(peer, bcardCacheEntry{bcard: bcard, resolvedAt: now})
}

func (b *bcardCache) invalidate(peer PeerID) {
	b.c.Remove(peer)
}
