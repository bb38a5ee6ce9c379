package tablemeta

import "context"

// Create implements §4.9: mint a table id and initial timestamp, derive
// the replica set, generate Raft member ids and initial persisted state,
// fan out to each replica's action mailbox, and classify the outcome.
func (c *Client) Create(ctx context.Context, cfg TableConfigAndShards) (TableID, Result, error) {
	id := NewTableID()
	var result Result
	err := c.loop.Submit(ctx, func(ctx context.Context) error {
		ts := NewTimestamp(c.clock.Now())

		replicas := cfg.ReplicaSet()
		memberByServer := make(map[ServerID]RaftMemberID, len(replicas))
		for _, r := range replicas {
			memberByServer[r] = NewRaftMemberID()
		}
		voters := make([]RaftMemberID, 0, len(memberByServer))
		for _, m := range memberByServer {
			voters = append(voters, m)
		}
		state := RaftPersistentState{TableConfig: cfg, Config: RaftConfig{Voters: voters}}

		replicaSet := make(map[ServerID]struct{}, len(replicas))
		for _, r := range replicas {
			replicaSet[r] = struct{}{}
		}

		var targets []actionTarget
		c.dir.ManagerBcards.ReadAll(func(peer PeerID, bcard TableMetaManagerBcard) {
			if _, wanted := replicaSet[bcard.ServerID]; !wanted {
				return
			}
			member := memberByServer[bcard.ServerID]
			st := state
			targets = append(targets, actionTarget{
				peer:  peer,
				bcard: bcard,
				req: ActionRequest{
					TableID:   id,
					Timestamp: ts,
					IsDrop:    false,
					MemberID:  &member,
					State:     &st,
				},
			})
		})

		acked, attempted, fanErr := c.fanOutAction(ctx, targets)
		if fanErr != nil {
			c.log.Debugw("create: not every replica acked", "table", id, "acked", acked, "attempted", attempted, "err", fanErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case acked > 0:
			timedOut, waitErr := c.waitForTableCondition(ctx, id, func(_ ReducedTable, ok bool) bool { return ok })
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
	return id, result, err
}
