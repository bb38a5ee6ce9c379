package tablemeta

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// actionTarget is one peer to fan an action_mailbox request out to; req's
// ReplyAddr is left zero and filled in by fanOutAction per-call.
type actionTarget struct {
	peer  PeerID
	bcard TableMetaManagerBcard
	req   ActionRequest
}

// fanOutAction sends every target's request to its action mailbox in
// parallel via errgroup.Group, counting acks. Per §9's "fan-out with
// per-peer isolation" decision, every goroutine returns nil regardless of
// its own outcome — disconnect, send failure, or interruption all just
// fail to increment acked — so one peer's trouble never aborts the others
// or the group itself. The per-peer causes are not discarded, though:
// they're joined with multierr and handed back so a caller with only a
// bare acked/attempted count can still log why the gap between them
// exists.
func (c *Client) fanOutAction(ctx context.Context, targets []actionTarget) (acked, attempted int, errs error) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			mu.Lock()
			attempted++
			mu.Unlock()

			disc := c.tr.DisconnectWatcher(t.peer)
			replyAddr, replies, cancel := c.tr.NewReplyMailbox()
			defer cancel()

			req := t.req
			req.ReplyAddr = replyAddr
			if err := c.tr.Send(t.bcard.ActionMailbox, req); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("peer %v: send action: %w", t.peer, err))
				mu.Unlock()
				return nil
			}
			if _, outcome := waitReplyDisconnectCtx(ctx, replies, disc); outcome == waitReply {
				mu.Lock()
				acked++
				mu.Unlock()
			} else {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("peer %v: %s", t.peer, outcome))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return acked, attempted, errs
}

// waitForTableCondition waits, up to configWaitTimeout, for predicate to
// hold on id's reduced entry, joined against ctx via a wait-any select
// over a clock.Timer and ctx.Done() (§5, §9). timedOut is true only if the
// timer fired before the predicate was satisfied or ctx was cancelled.
func (c *Client) waitForTableCondition(ctx context.Context, id TableID, predicate func(ReducedTable, bool) bool) (timedOut bool, err error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.dir.Reduced().RunKeyUntilSatisfied(waitCtx, id, predicate) }()

	timer := c.clock.Timer(configWaitTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return false, err
	case <-timer.C:
		return true, nil
	}
}
