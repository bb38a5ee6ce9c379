package tablemeta

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ListConfigs implements §4.8: fan out to every visible server's
// get_config mailbox with a nil table id, merging replies.
//
// Per-peer aborts (disconnect, interruption, send failure) are swallowed
// so the combinator always joins (§9 "fan-out with per-peer isolation");
// the outer interruptor is re-checked once the fan-out has joined, since
// errgroup itself never surfaces it. The swallowed causes are joined with
// multierr and logged rather than dropped outright, so a caller staring
// at a suspiciously small result set has somewhere to look.
func (c *Client) ListConfigs(ctx context.Context) (map[TableID]TableConfigAndShards, error) {
	configs := make(map[TableID]TableConfigAndShards)
	err := c.loop.Submit(ctx, func(ctx context.Context) error {
		type target struct {
			peer  PeerID
			bcard TableMetaManagerBcard
		}
		var targets []target
		c.dir.ManagerBcards.ReadAll(func(k PeerID, v TableMetaManagerBcard) {
			targets = append(targets, target{peer: k, bcard: v})
		})

		var mu sync.Mutex
		var fanErr error
		g, _ := errgroup.WithContext(ctx)
		for _, t := range targets {
			t := t
			g.Go(func() error {
				reply, outcome, sendErr := c.sendGetConfig(ctx, t.peer, t.bcard, nil)
				if sendErr != nil {
					mu.Lock()
					fanErr = multierr.Append(fanErr, fmt.Errorf("peer %v: get_config: %w", t.peer, sendErr))
					mu.Unlock()
					return nil
				}
				if outcome != waitReply {
					mu.Lock()
					fanErr = multierr.Append(fanErr, fmt.Errorf("peer %v: %s", t.peer, outcome))
					mu.Unlock()
					return nil
				}
				mu.Lock()
				for id, cfg := range reply.Configs {
					configs[id] = cfg
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		if fanErr != nil {
			c.log.Debugw("list_configs: not every peer replied", "err", fanErr)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return configs, nil
}
