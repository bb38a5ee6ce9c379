package tablemeta

import "context"

// findLeader implements §4.11 step 1: scan (peer, table) entries for id
// with IsLeader set, picking the highest timestamp (ties keep whichever
// was seen first).
func (c *Client) findLeader(id TableID) (PeerID, TableMetaManagerBcard, bool) {
	var bestPeer PeerID
	var bestBcard TableMetaManagerBcard
	var bestTS Timestamp
	found := false
	c.dir.Raw.ReadAll(func(k PeerTableKey, v TableMetaBcard) {
		if k.Table != id || !v.IsLeader {
			return
		}
		bcard, ok := c.resolveBcard(k.Peer)
		if !ok {
			return
		}
		if !found || v.Timestamp.Supersedes(bestTS) {
			bestPeer, bestBcard, bestTS, found = k.Peer, bcard, v.Timestamp, true
		}
	})
	return bestPeer, bestBcard, found
}

// SetConfig implements §4.11: locate the leader, send it the new config,
// and wait for the mirror to reflect the change.
//
// Open question (§9, preserved verbatim): the wait predicate below treats
// the entry disappearing (present==false) as satisfied, meaning a drop
// racing with a concurrent SetConfig makes this return success rather
// than maybe or failure. This is deliberate — "the config you wanted is
// no longer relevant" — but is easy to trip over at the call boundary, so
// it is called out here rather than only in the design notes.
func (c *Client) SetConfig(ctx context.Context, id TableID, newConfig TableConfigAndShards) (Result, error) {
	var result Result
	err := c.loop.Submit(ctx, func(ctx context.Context) error {
		peer, bcard, ok := c.findLeader(id)
		if !ok {
			result = ResultFailure
			c.m.recordResult(result)
			return nil
		}

		disc := c.tr.DisconnectWatcher(peer)
		replyAddr, replies, cancel := c.tr.NewReplyMailbox()
		defer cancel()

		req := SetConfigRequest{TableID: id, NewConfig: newConfig, ReplyAddr: replyAddr}
		if err := c.tr.Send(bcard.SetConfigMailbox, req); err != nil {
			result = ResultMaybe
			c.m.recordResult(result)
			return nil
		}

		v, outcome := waitReplyDisconnectCtx(ctx, replies, disc)
		switch outcome {
		case waitInterrupted:
			return ctx.Err()
		case waitDisconnect:
			result = ResultMaybe
			c.m.recordResult(result)
			return nil
		}

		reply, _ := v.(SetConfigReply)
		if reply.NewTimestamp == nil {
			result = ResultMaybe
			c.m.recordResult(result)
			return nil
		}
		newTS := *reply.NewTimestamp

		// Disjunctive wait: matching by name/database alone is ambiguous if
		// another concurrent change reuses the same name, so the timestamp
		// check disambiguates (§4.11 rationale).
		timedOut, waitErr := c.waitForTableCondition(ctx, id, func(m ReducedTable, present bool) bool {
			if !present {
				return true
			}
			if m.Timestamp.Supersedes(newTS) {
				return true
			}
			return m.Name == newConfig.Name && m.Database == newConfig.Database
		})
		if waitErr != nil {
			return waitErr
		}
		if timedOut {
			result = ResultMaybe
		} else {
			result = ResultSuccess
		}
		c.m.recordResult(result)
		return nil
	})
	return result, err
}
