package tablemeta

import "context"

// pickCandidate implements §4.7 step 2: among peers advertising id with a
// resolvable business card, choose the one whose advertised timestamp is
// highest by the superseding relation. Ties keep whichever was seen first
// during the scan.
func (c *Client) pickCandidate(id TableID) (PeerID, TableMetaManagerBcard, bool) {
	var bestPeer PeerID
	var bestBcard TableMetaManagerBcard
	var bestTS Timestamp
	found := false
	c.dir.Raw.ReadAll(func(k PeerTableKey, v TableMetaBcard) {
		if k.Table != id {
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

// sendGetConfig sends a get_config request to peer and waits for a reply,
// a disconnect, or ctx cancellation. tableID nil requests every table the
// peer hosts (list_configs); non-nil requests exactly one.
func (c *Client) sendGetConfig(ctx context.Context, peer PeerID, bcard TableMetaManagerBcard, tableID *TableID) (GetConfigReply, waitOutcome, error) {
	disc := c.tr.DisconnectWatcher(peer)
	replyAddr, replies, cancel := c.tr.NewReplyMailbox()
	defer cancel()
	if err := c.tr.Send(bcard.GetConfigMailbox, GetConfigRequest{TableID: tableID, ReplyAddr: replyAddr}); err != nil {
		return GetConfigReply{}, waitDisconnect, nil
	}
	v, outcome := waitReplyDisconnectCtx(ctx, replies, disc)
	if outcome != waitReply {
		return GetConfigReply{}, outcome, nil
	}
	reply, _ := v.(GetConfigReply)
	return reply, waitReply, nil
}

// GetConfig implements §4.7: resolve the best candidate peer for id, ask
// it, and interpret the reply.
//
// Open question (§9, preserved verbatim): a reply carrying more than one
// entry is a protocol violation, not a runtime condition, so it panics
// rather than returning an error.
func (c *Client) GetConfig(ctx context.Context, id TableID) (TableConfigAndShards, bool, error) {
	var result TableConfigAndShards
	var found bool
	err := c.loop.Submit(ctx, func(ctx context.Context) error {
		peer, bcard, ok := c.pickCandidate(id)
		if !ok {
			return nil
		}
		reply, outcome, sendErr := c.sendGetConfig(ctx, peer, bcard, &id)
		if sendErr != nil {
			return sendErr
		}
		switch outcome {
		case waitInterrupted:
			return ctx.Err()
		case waitDisconnect:
			return nil
		}
		switch len(reply.Configs) {
		case 0:
			return nil
		case 1:
			cfg, ok := reply.Configs[id]
			if !ok {
				panic(ErrGetConfigProtocolViolation)
			}
			result, found = cfg, true
			return nil
		default:
			panic(ErrGetConfigProtocolViolation)
		}
	})
	return result, found, err
}
