package tablemeta

import "context"

// Drop implements §4.10: identical fan-out structure to Create, but the
// peer set is derived from the table directory (peers currently hosting
// the table) rather than the manager directory, and the timestamp is the
// synthetic drop sentinel that outranks any real advertisement, so any
// in-flight rebalancing resolves in favor of deletion.
func (c *Client) Drop(ctx context.Context, id TableID) (Result, error) {
	var result Result
	err := c.loop.Submit(ctx, func(ctx context.Context) error {
		dropTS := MaxTimestamp()

		seen := make(map[PeerID]struct{})
		var targets []actionTarget
		c.dir.Raw.ReadAll(func(k PeerTableKey, v TableMetaBcard) {
			if k.Table != id {
				return
			}
			if _, dup := seen[k.Peer]; dup {
				return
			}
			bcard, ok := c.resolveBcard(k.Peer)
			if !ok {
				return
			}
			seen[k.Peer] = struct{}{}
			targets = append(targets, actionTarget{
				peer:  k.Peer,
				bcard: bcard,
				req: ActionRequest{
					TableID:   id,
					Timestamp: dropTS,
					IsDrop:    true,
				},
			})
		})

		acked, attempted, fanErr := c.fanOutAction(ctx, targets)
		if fanErr != nil {
			c.log.Debugw("drop: not every replica acked", "table", id, "acked", acked, "attempted", attempted, "err", fanErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case acked > 0:
			timedOut, waitErr := c.waitForTableCondition(ctx, id, func(_ ReducedTable, ok bool) bool { return !ok })
			if waitErr != nil {
				return waitErr
			}
			if timedOut {
				result = ResultMaybe
			} else {
				result = ResultSuccess
			}
		case attempted > 0:
			result = ResultMaybe
		default:
			result = ResultFailure
		}
		c.m.recordResult(result)
		return nil
	})
	return result, err
}
