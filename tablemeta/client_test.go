package tablemeta_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/lattice/tablemeta"
	"github.com/latticedb/lattice/tablemeta/peertest"
)

func newTestCluster(t *testing.T, replicaCount int) (*tablemeta.Client, *tablemeta.Directory, *peertest.Broker, []tablemeta.PeerID) {
	t.Helper()
	dir := tablemeta.NewDirectory()
	t.Cleanup(dir.Close)

	broker := peertest.NewBroker()
	peers := make([]tablemeta.PeerID, replicaCount)
	for i := range peers {
		peers[i] = tablemeta.NewPeerID()
		peertest.NewResponder(peers[i], tablemeta.NewServerID(), i == 0, dir, broker)
	}

	self := tablemeta.NewPeerID()
	cfg := tablemeta.DefaultConfig()
	cfg.Self = self
	cfg.Directory = dir
	cfg.Transport = broker
	client := tablemeta.NewClient(cfg)
	t.Cleanup(client.Close)

	return client, dir, broker, peers
}

func waitForServerIDs(t *testing.T, dir *tablemeta.Directory, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n := 0
		dir.ManagerBcards.ReadAll(func(_ tablemeta.PeerID, _ tablemeta.TableMetaManagerBcard) { n++ })
		if n >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d manager bcards", want)
}

// TestCreateAllAck covers §8 scenario: every replica acks, the directory
// converges, and Create reports success.
func TestCreateAllAck(t *testing.T) {
	client, dir, _, peers := newTestCluster(t, 3)
	waitForServerIDs(t, dir, len(peers))

	var servers []tablemeta.ServerID
	dir.ManagerBcards.ReadAll(func(_ tablemeta.PeerID, b tablemeta.TableMetaManagerBcard) {
		servers = append(servers, b.ServerID)
	})

	cfg := tablemeta.TableConfigAndShards{
		Database: "db",
		Name:     "orders",
		Shards:   []tablemeta.ShardConfig{{Replicas: servers}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, result, err := client.Create(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, tablemeta.ResultSuccess, result)

	gotID, ok, err := client.Find(ctx, "db", "orders")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, gotID)
}

// TestDropSupersedesCreate covers §8: dropping a table whose peers still
// hold a stale advertisement must win regardless of arrival order, since
// the drop timestamp is the synthetic maximum.
func TestDropSupersedesCreate(t *testing.T) {
	client, dir, _, peers := newTestCluster(t, 2)
	waitForServerIDs(t, dir, len(peers))

	var servers []tablemeta.ServerID
	dir.ManagerBcards.ReadAll(func(_ tablemeta.PeerID, b tablemeta.TableMetaManagerBcard) {
		servers = append(servers, b.ServerID)
	})

	cfg := tablemeta.TableConfigAndShards{
		Database: "db",
		Name:     "sessions",
		Shards:   []tablemeta.ShardConfig{{Replicas: servers}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, result, err := client.Create(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, tablemeta.ResultSuccess, result)

	dropResult, err := client.Drop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tablemeta.ResultSuccess, dropResult)

	_, ok, err := client.GetConfig(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestGetConfigNotHosted covers §4.7 step 3's no-candidate branch (no
// request is sent): a table id
// no peer currently hosts resolves to "not found" rather than an error.
func TestGetConfigNotHosted(t *testing.T) {
	client, dir, _, peers := newTestCluster(t, 1)
	waitForServerIDs(t, dir, len(peers))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, ok, err := client.GetConfig(ctx, tablemeta.NewTableID())
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCreatePartialAckSucceeds covers §8 scenario 5: three replicas, one
// already disconnected before the fan-out starts, the other two ack.
// num_acked == 2 and the mirror still converges to success.
func TestCreatePartialAckSucceeds(t *testing.T) {
	client, dir, broker, peers := newTestCluster(t, 3)
	waitForServerIDs(t, dir, len(peers))
	broker.Disconnect(peers[2])

	var servers []tablemeta.ServerID
	dir.ManagerBcards.ReadAll(func(_ tablemeta.PeerID, b tablemeta.TableMetaManagerBcard) {
		servers = append(servers, b.ServerID)
	})

	cfg := tablemeta.TableConfigAndShards{
		Database: "db",
		Name:     "events",
		Shards:   []tablemeta.ShardConfig{{Replicas: servers}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, result, err := client.Create(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, tablemeta.ResultSuccess, result)

	_, ok, err := client.GetConfig(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestCreateAllDisconnectedIsMaybe covers §8 scenario 6: every replica is
// already gone before the fan-out starts, so num_acked == 0 but at least
// one send was attempted, yielding maybe rather than failure.
func TestCreateAllDisconnectedIsMaybe(t *testing.T) {
	client, dir, broker, peers := newTestCluster(t, 2)
	waitForServerIDs(t, dir, len(peers))
	for _, p := range peers {
		broker.Disconnect(p)
	}

	var servers []tablemeta.ServerID
	dir.ManagerBcards.ReadAll(func(_ tablemeta.PeerID, b tablemeta.TableMetaManagerBcard) {
		servers = append(servers, b.ServerID)
	})

	cfg := tablemeta.TableConfigAndShards{
		Database: "db",
		Name:     "vanished",
		Shards:   []tablemeta.ShardConfig{{Replicas: servers}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, result, err := client.Create(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, tablemeta.ResultMaybe, result)
}

// TestSetConfigByLeaderSucceeds covers §4.11: the leader acknowledges a
// rename and the mirror converges to the new name.
func TestSetConfigByLeaderSucceeds(t *testing.T) {
	client, dir, _, peers := newTestCluster(t, 2)
	waitForServerIDs(t, dir, len(peers))

	var servers []tablemeta.ServerID
	dir.ManagerBcards.ReadAll(func(_ tablemeta.PeerID, b tablemeta.TableMetaManagerBcard) {
		servers = append(servers, b.ServerID)
	})

	cfg := tablemeta.TableConfigAndShards{
		Database: "db",
		Name:     "renamable",
		Shards:   []tablemeta.ShardConfig{{Replicas: servers}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, result, err := client.Create(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, tablemeta.ResultSuccess, result)

	renamed := cfg
	renamed.Name = "renamed"
	setResult, err := client.SetConfig(ctx, id, renamed)
	require.NoError(t, err)
	assert.Equal(t, tablemeta.ResultSuccess, setResult)

	got, ok, err := client.GetConfig(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Name)
}

// TestSetConfigNoLeaderIsFailure covers findLeader's not-found branch: no
// peer currently advertises id as leader, so SetConfig fails outright
// rather than sending anywhere.
func TestSetConfigNoLeaderIsFailure(t *testing.T) {
	client, dir, _, peers := newTestCluster(t, 1)
	waitForServerIDs(t, dir, len(peers))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := client.SetConfig(ctx, tablemeta.NewTableID(), tablemeta.TableConfigAndShards{})
	require.NoError(t, err)
	assert.Equal(t, tablemeta.ResultFailure, result)
}

// TestListConfigsMergesAcrossPeers covers §4.8: list_configs fans out to
// every visible server and merges the per-peer replies into one map.
func TestListConfigsMergesAcrossPeers(t *testing.T) {
	client, dir, _, peers := newTestCluster(t, 2)
	waitForServerIDs(t, dir, len(peers))

	var servers []tablemeta.ServerID
	dir.ManagerBcards.ReadAll(func(_ tablemeta.PeerID, b tablemeta.TableMetaManagerBcard) {
		servers = append(servers, b.ServerID)
	})

	shards := []tablemeta.ShardConfig{{Replicas: servers}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id1, result, err := client.Create(ctx, tablemeta.TableConfigAndShards{Database: "db", Name: "a", Shards: shards})
	require.NoError(t, err)
	require.Equal(t, tablemeta.ResultSuccess, result)

	id2, result, err := client.Create(ctx, tablemeta.TableConfigAndShards{Database: "db", Name: "b", Shards: shards})
	require.NoError(t, err)
	require.Equal(t, tablemeta.ResultSuccess, result)

	configs, err := client.ListConfigs(ctx)
	require.NoError(t, err)
	assert.Contains(t, configs, id1)
	assert.Contains(t, configs, id2)
	assert.Equal(t, "a", configs[id1].Name)
	assert.Equal(t, "b", configs[id2].Name)
}

// TestBcardCacheInvalidatesOnRejoin covers §8 scenario 9: a peer's cached
// business card must be evicted the moment the directory reports a delta
// for it, so a rejoin under a fresh mailbox address is never masked by a
// stale cache hit.
func TestBcardCacheInvalidatesOnRejoin(t *testing.T) {
	dir := tablemeta.NewDirectory()
	defer dir.Close()
	broker := peertest.NewBroker()

	peer := tablemeta.NewPeerID()
	responder := peertest.NewResponder(peer, tablemeta.NewServerID(), true, dir, broker)
	waitForServerIDs(t, dir, 1)

	self := tablemeta.NewPeerID()
	cfg := tablemeta.DefaultConfig()
	cfg.Self = self
	cfg.Directory = dir
	cfg.Transport = broker
	cfg.Clock = clock.NewMock()
	client := tablemeta.NewClient(cfg)
	defer client.Close()

	var first tablemeta.TableMetaManagerBcard
	dir.ManagerBcards.ReadKey(peer, func(v tablemeta.TableMetaManagerBcard, ok bool) {
		first = v
	})

	// Populate the cache with the peer's original card.
	id := tablemeta.NewTableID()
	responder.SeedTable(id, tablemeta.TableConfigAndShards{Database: "db", Name: "cached"})
	dir.Advertise(peer, id, tablemeta.TableMetaBcard{Database: "db", Name: "cached", IsLeader: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, ok, err := client.GetConfig(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cached", got.Name)

	// Simulate a rejoin under a fresh mailbox address. The broker knows no
	// such mailboxes, so once the cached card is evicted GetConfig resolves
	// the new card and reports "not found"; a stale cache hit would still
	// reach the old mailbox and answer "cached".
	rejoined := tablemeta.TableMetaManagerBcard{
		ServerID:         first.ServerID,
		ActionMailbox:    "new-action-addr",
		GetConfigMailbox: "new-get-config-addr",
		SetConfigMailbox: "new-set-config-addr",
	}
	dir.ManagerBcards.Set(peer, rejoined)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		var current tablemeta.TableMetaManagerBcard
		dir.ManagerBcards.ReadKey(peer, func(v tablemeta.TableMetaManagerBcard, ok bool) { current = v })
		if current.ActionMailbox == rejoined.ActionMailbox {
			if _, ok, err := client.GetConfig(ctx, id); err == nil && !ok {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("client kept using the stale cached business card after the rejoin")
}
