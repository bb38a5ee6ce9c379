package peertest

import (
	"sync"
	"time"

	"github.com/latticedb/lattice/tablemeta"
)

// Responder simulates one peer's table-manager: it answers the three
// mailbox RPCs a tablemeta.Client sends and mirrors accepted changes into
// the shared directory, standing in for the Raft-backed server that would
// do this for real. Which responder in a test group answers as the table
// leader is fixed at construction (isLeader) rather than derived from
// action_mailbox traffic, sidestepping the fact that ActionRequest (§6)
// carries no leader flag — a real cluster elects a leader once and the
// wire messages never need to say so.
type Responder struct {
	peer     tablemeta.PeerID
	server   tablemeta.ServerID
	isLeader bool
	dir      *tablemeta.Directory
	broker   *Broker

	mu     sync.Mutex
	tables map[tablemeta.TableID]tablemeta.TableConfigAndShards
}

// NewResponder registers peer's three mailboxes on broker and publishes
// its business card into dir. isLeader marks every table this responder
// hosts as one whose set_config requests it should accept.
func NewResponder(peer tablemeta.PeerID, server tablemeta.ServerID, isLeader bool, dir *tablemeta.Directory, broker *Broker) *Responder {
	r := &Responder{
		peer:     peer,
		server:   server,
		isLeader: isLeader,
		dir:      dir,
		broker:   broker,
		tables:   make(map[tablemeta.TableID]tablemeta.TableConfigAndShards),
	}

	bcard := tablemeta.TableMetaManagerBcard{
		ServerID:         server,
		ActionMailbox:    broker.register(r.dispatchAction),
		GetConfigMailbox: broker.register(r.dispatchGetConfig),
		SetConfigMailbox: broker.register(r.dispatchSetConfig),
	}
	dir.ManagerBcards.Set(peer, bcard)
	return r
}

// SeedTable pre-populates the responder's table catalog for tests that
// only exercise Drop/GetConfig/SetConfig against an already-"existing"
// table without driving a full Create fan-out first. A real Create
// carries the full config in ActionRequest.State.TableConfig, so this is
// purely a shortcut for tests that don't need Create's own round trip.
func (r *Responder) SeedTable(id tablemeta.TableID, cfg tablemeta.TableConfigAndShards) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[id] = cfg
}

func (r *Responder) dispatchAction(msg any) {
	req, ok := msg.(tablemeta.ActionRequest)
	if !ok {
		return
	}
	r.handleAction(req)
	if req.ReplyAddr != nil {
		_ = r.broker.Send(req.ReplyAddr, tablemeta.ActionReply{})
	}
}

func (r *Responder) handleAction(req tablemeta.ActionRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.IsDrop {
		delete(r.tables, req.TableID)
		r.dir.Withdraw(r.peer, req.TableID)
		return
	}

	cfg, ok := r.tables[req.TableID]
	if !ok {
		if req.State != nil {
			cfg = req.State.TableConfig
		}
		r.tables[req.TableID] = cfg
	}
	r.dir.Advertise(r.peer, req.TableID, tablemeta.TableMetaBcard{
		Database:   cfg.Database,
		Name:       cfg.Name,
		PrimaryKey: cfg.PrimaryKey,
		Timestamp:  req.Timestamp,
		IsLeader:   r.isLeader,
	})
}

func (r *Responder) dispatchGetConfig(msg any) {
	req, ok := msg.(tablemeta.GetConfigRequest)
	if !ok {
		return
	}
	reply := r.handleGetConfig(req)
	if req.ReplyAddr != nil {
		_ = r.broker.Send(req.ReplyAddr, reply)
	}
}

func (r *Responder) handleGetConfig(req tablemeta.GetConfigRequest) tablemeta.GetConfigReply {
	r.mu.Lock()
	defer r.mu.Unlock()

	configs := make(map[tablemeta.TableID]tablemeta.TableConfigAndShards)
	if req.TableID != nil {
		if cfg, ok := r.tables[*req.TableID]; ok {
			configs[*req.TableID] = cfg
		}
		return tablemeta.GetConfigReply{Configs: configs}
	}
	for id, cfg := range r.tables {
		configs[id] = cfg
	}
	return tablemeta.GetConfigReply{Configs: configs}
}

func (r *Responder) dispatchSetConfig(msg any) {
	req, ok := msg.(tablemeta.SetConfigRequest)
	if !ok {
		return
	}
	reply := r.handleSetConfig(req)
	if req.ReplyAddr != nil {
		_ = r.broker.Send(req.ReplyAddr, reply)
	}
}

func (r *Responder) handleSetConfig(req tablemeta.SetConfigRequest) tablemeta.SetConfigReply {
	if !r.isLeader {
		return tablemeta.SetConfigReply{}
	}

	r.mu.Lock()
	r.tables[req.TableID] = req.NewConfig
	r.mu.Unlock()

	newTS := tablemeta.NewTimestamp(time.Now())
	r.dir.Advertise(r.peer, req.TableID, tablemeta.TableMetaBcard{
		Database:   req.NewConfig.Database,
		Name:       req.NewConfig.Name,
		PrimaryKey: req.NewConfig.PrimaryKey,
		Timestamp:  newTS,
		IsLeader:   true,
	})
	return tablemeta.SetConfigReply{NewTimestamp: &newTS}
}
