package tablemeta

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/latticedb/lattice/internal/home"
)

// Config configures a Client. Mirrors the teacher's Config/Default...()
// convention (no CLI/env parsing, a Non-goal).
type Config struct {
	Self      PeerID
	Directory *Directory
	Transport Transport

	Clock            Clock
	Logger           *zap.Logger
	Metrics          prometheus.Registerer
	MetricsNamespace string
	BcardCacheSize   int
}

// DefaultConfig returns a Config with a real clock, an unregistered
// metrics namespace, and a modestly sized business-card cache.
func DefaultConfig() Config {
	return Config{
		Clock:            clock.New(),
		MetricsNamespace: "tablemeta",
		BcardCacheSize:   256,
	}
}

// Client is the table metadata client (§2): a directory mirror reader plus
// a fan-out RPC surface, all driven through a dedicated home-thread loop.
type Client struct {
	self PeerID
	loop *home.Loop
	dir  *Directory
	tr   Transport

	cache             *bcardCache
	cancelBcardWatch  func()
	clock             Clock
	log               *zap.SugaredLogger
	m                 *metrics
}

// NewClient constructs a Client bound to the given directory and
// transport, and starts its home-thread loop plus its business-card cache
// invalidation watcher (§8 scenario 9).
func NewClient(cfg Config) *Client {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	size := cfg.BcardCacheSize
	if size <= 0 {
		size = 256
	}
	log := zap.NewNop().Sugar()
	if cfg.Logger != nil {
		log = cfg.Logger.Sugar()
	}
	c := &Client{
		self:  cfg.Self,
		loop:  home.NewLoop(),
		dir:   cfg.Directory,
		tr:    cfg.Transport,
		cache: newBcardCache(size),
		clock: cfg.Clock,
		log:   log,
		m:     newMetrics(cfg.Metrics, cfg.MetricsNamespace),
	}
	c.watchBcardInvalidation()
	return c
}

// watchBcardInvalidation evicts a peer's cached business card the instant
// the directory delivers any delta for that peer — a disconnect, a
// rejoin with a new mailbox address, or a plain republish. Overzealous but
// safe: the next lookup just repopulates the cache from the directory.
func (c *Client) watchBcardInvalidation() {
	ch := make(chan Delta[PeerID, TableMetaManagerBcard], 256)
	cancel := c.dir.ManagerBcards.Subscribe(ch)
	stop := make(chan struct{})
	c.cancelBcardWatch = func() {
		cancel()
		close(stop)
	}
	go func() {
		for {
			select {
			case d := <-ch:
				c.cache.invalidate(d.Key)
			case <-stop:
				return
			}
		}
	}()
}

// resolveBcard resolves peer's table-manager business card, preferring the
// LRU cache and falling back to the manager directory on a miss (§4.7
// step 2).
func (c *Client) resolveBcard(peer PeerID) (TableMetaManagerBcard, bool) {
	if b, ok := c.cache.get(peer); ok {
		return b, true
	}
	var found TableMetaManagerBcard
	var ok bool
	c.dir.ManagerBcards.ReadKey(peer, func(v TableMetaManagerBcard, present bool) {
		found, ok = v, present
	})
	if ok {
		c.cache.put(peer, found, c.clock.Now())
	}
	return found, ok
}

// Close stops the home-thread loop and the cache-invalidation watcher.
func (c *Client) Close() {
	c.cancelBcardWatch()
	c.loop.Close()
}
