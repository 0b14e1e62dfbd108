// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node assembles a full fabric node: storage, keys, the secure
// session layer, the replicated registry, tasks, escrow and governance,
// plus the background workers that keep them healthy.
package node

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/pkg/errors"

	"github.com/a2afabric/fabric/api"
	"github.com/a2afabric/fabric/auditdb"
	"github.com/a2afabric/fabric/chunker"
	"github.com/a2afabric/fabric/co"
	"github.com/a2afabric/fabric/cry"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/escrow"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/gov"
	"github.com/a2afabric/fabric/handshake"
	"github.com/a2afabric/fabric/kv"
	"github.com/a2afabric/fabric/ledger"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/message"
	"github.com/a2afabric/fabric/registry"
	"github.com/a2afabric/fabric/session"
	"github.com/a2afabric/fabric/task"
	"github.com/a2afabric/fabric/transport"
	"github.com/a2afabric/fabric/verifier"
)

var logger = log.WithContext("pkg", "node")

const sendTimeout = 10 * time.Second

// Node is one running fabric participant.
type Node struct {
	cfg   Config
	keys  *cry.KeyPair
	store kv.Store
	audit *auditdb.AuditDB
	trans transport.Transport

	sessions *session.Manager
	hs       *handshake.Engine
	reg      *registry.Registry
	gossip   *registry.Gossiper
	book     *ledger.Ledger
	tasks    *task.Tracker
	checks   *verifier.Engine
	escrows  *escrow.Manager
	params   *gov.ParamsHandler
	govMgr   *gov.Manager

	reasm   *chunker.Reassembler
	reasmMu sync.Mutex

	seeds   map[fabric.AgentID]string
	started time.Time

	goes   co.Goes
	cancel context.CancelFunc
}

// New builds a node from cfg. The transport is owned by the node and closed
// with it. An empty data dir keeps everything in memory.
func New(cfg Config, passphrase []byte, trans transport.Transport) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	keys, err := loadKeys(cfg.KeyFile, passphrase)
	if err != nil {
		return nil, err
	}

	store, audit, err := openStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:     cfg,
		keys:    keys,
		store:   store,
		audit:   audit,
		trans:   trans,
		reasm:   chunker.NewReassembler(seconds(cfg.HandshakeTimeoutSeconds)),
		seeds:   make(map[fabric.AgentID]string),
		started: time.Now(),
	}
	for _, p := range cfg.SeedPeers {
		n.seeds[fabric.AgentID(p.AgentID)] = p.Endpoint
	}

	n.sessions = session.NewManager(cfg.SessionOptions())
	n.hs = handshake.New(fabric.AgentID(cfg.AgentID), keys, n.sessions,
		n.sendMessage, seconds(cfg.HandshakeTimeoutSeconds))

	n.reg, err = registry.New(fabric.NodeID(cfg.NodeID),
		kv.Bucket("registry:").NewStore(store), cfg.RegistryOptions())
	if err != nil {
		return nil, err
	}
	n.gossip = registry.NewGossiper(n.reg, fabric.AgentID(cfg.AgentID), keys,
		n.sendMessage, n.gossipPeers)
	n.gossip.SetInterval(seconds(cfg.GossipIntervalSeconds))

	n.book, err = ledger.New(kv.Bucket("ledger:").NewStore(store), audit)
	if err != nil {
		return nil, err
	}

	n.tasks = task.NewTracker()
	n.checks = verifier.NewEngine()

	n.escrows, err = escrow.New(n.book, kv.Bucket("escrow:").NewStore(store))
	if err != nil {
		return nil, err
	}

	n.params = gov.NewParamsHandler(nil)
	executor := gov.NewExecutor()
	executor.Register("ledger", gov.NewLedgerHandler(n.book))
	executor.Register("registry", gov.NewRegistryHandler(n.reg))
	executor.Register("params", n.params)
	n.govMgr = gov.New(n.book, executor, cfg.GovOptions())

	if _, err := n.reg.RegisterLocal(n.Identity()); err != nil {
		return nil, errors.Wrap(err, "register self")
	}
	return n, nil
}

func loadKeys(path string, passphrase []byte) (*cry.KeyPair, error) {
	if path == "" {
		logger.Warn("no key file configured, using an ephemeral identity key")
		return cry.GenerateKeyPair()
	}
	if _, err := os.Stat(path); err == nil {
		return cry.LoadKeyPair(path, passphrase)
	}
	keys, err := cry.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := cry.SaveKeyPair(path, keys, passphrase); err != nil {
		return nil, err
	}
	logger.Info("generated identity key", "file", path, "fingerprint", keys.Fingerprint())
	return keys, nil
}

func openStorage(dataDir string) (kv.Store, *auditdb.AuditDB, error) {
	if dataDir == "" {
		audit, err := auditdb.NewMem()
		if err != nil {
			return nil, nil, err
		}
		return kv.NewMem(), audit, nil
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, errors.Wrap(err, "create data dir")
	}
	store, err := kv.OpenLevelDB(filepath.Join(dataDir, "fabric.db"), 128, 512)
	if err != nil {
		return nil, nil, err
	}
	audit, err := auditdb.New(filepath.Join(dataDir, "audit.db"))
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, nil, err
	}
	return store, audit, nil
}

// Identity returns this node's agent identity as advertised in the registry.
func (n *Node) Identity() *fabric.Identity {
	return &fabric.Identity{
		AgentID:      fabric.AgentID(n.cfg.AgentID),
		DisplayName:  n.cfg.DisplayName,
		PublicKey:    n.keys.Public(),
		Endpoint:     n.cfg.ListenAddr,
		Capabilities: n.cfg.Capabilities,
	}
}

// Accessors for the API layer and the CLI.

func (n *Node) Registry() *registry.Registry  { return n.reg }
func (n *Node) Sessions() *session.Manager    { return n.sessions }
func (n *Node) Handshake() *handshake.Engine  { return n.hs }
func (n *Node) Ledger() *ledger.Ledger        { return n.book }
func (n *Node) Tasks() *task.Tracker          { return n.tasks }
func (n *Node) Verifier() *verifier.Engine    { return n.checks }
func (n *Node) Escrows() *escrow.Manager      { return n.escrows }
func (n *Node) Gov() *gov.Manager             { return n.govMgr }
func (n *Node) Params() *gov.ParamsHandler    { return n.params }
func (n *Node) Audit() *auditdb.AuditDB       { return n.audit }
func (n *Node) Keys() *cry.KeyPair            { return n.keys }

// Status implements api.Network.
func (n *Node) Status() api.Status {
	return api.Status{
		NodeID:          fabric.NodeID(n.cfg.NodeID),
		AgentID:         fabric.AgentID(n.cfg.AgentID),
		ProtocolVersion: fabric.ProtocolVersion,
		StartedAt:       n.started,
		RegistrySize:    len(n.reg.Entries()),
		ActiveSessions:  n.sessions.Len(),
		TotalSupply:     n.book.TotalSupply(),
	}
}

// Run starts the background workers and the inbound dispatch loop. It
// returns immediately; Close stops everything.
func (n *Node) Run(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)

	n.gossip.Start()
	n.goes.Go(func() { n.sessions.Housekeeping(ctx) })
	n.goes.Go(func() { n.tasks.Housekeeping(ctx, time.Minute) })
	n.goes.Go(func() { n.escrows.Housekeeping(ctx) })
	n.goes.Go(func() { n.govMgr.Housekeeping(ctx, time.Second) })
	n.goes.Go(func() { n.heartbeatLoop(ctx) })
	n.goes.Go(func() { n.gcLoop(ctx) })
	n.goes.Go(func() { n.clockCheckLoop(ctx) })
	n.goes.Go(func() { n.inboundLoop(ctx) })
	logger.Info("node started", "node", n.cfg.NodeID, "agent", n.cfg.AgentID)
}

// Close stops the workers and releases storage.
func (n *Node) Close() {
	if n.cancel != nil {
		n.cancel()
	}
	n.gossip.Stop()
	n.trans.Close() //nolint:errcheck
	n.goes.Wait()
	n.tasks.Close()
	n.reg.Close()
	n.audit.Close() //nolint:errcheck
	n.store.Close() //nolint:errcheck
	logger.Info("node stopped", "node", n.cfg.NodeID)
}

func (n *Node) heartbeatLoop(ctx context.Context) {
	interval := seconds(n.cfg.LivenessTimeoutSeconds) / 3
	co.Loop(ctx, interval, func() {
		if err := n.reg.UpdateHeartbeat(fabric.AgentID(n.cfg.AgentID)); err != nil {
			logger.Warn("heartbeat", "err", err)
		}
	})
}

func (n *Node) gcLoop(ctx context.Context) {
	co.Loop(ctx, time.Hour, func() {
		if removed := n.reg.GCTombstones(); removed > 0 {
			logger.Debug("tombstones collected", "count", removed)
		}
		n.reasmMu.Lock()
		n.reasm.Reap()
		n.reasmMu.Unlock()
	})
}

// clockCheckLoop warns when the local clock drifts beyond the configured
// timestamp tolerance, since that breaks replay defense for honest peers.
func (n *Node) clockCheckLoop(ctx context.Context) {
	check := func() {
		if n.cfg.NTPServer == "" {
			return
		}
		resp, err := ntp.Query(n.cfg.NTPServer)
		if err != nil {
			logger.Debug("failed to access NTP", "err", err)
			return
		}
		bound := seconds(n.cfg.TimestampToleranceSeconds)
		if resp.ClockOffset > bound || -resp.ClockOffset > bound {
			logger.Warn("clock offset detected", "offset", resp.ClockOffset)
		}
	}
	check()
	co.Loop(ctx, time.Hour, check)
}

// gossipPeers lists the alive registered agents excluding ourselves.
func (n *Node) gossipPeers() []fabric.AgentID {
	self := fabric.AgentID(n.cfg.AgentID)
	var peers []fabric.AgentID
	for _, e := range n.reg.Entries() {
		if e.EntityID == self || !n.reg.IsAlive(e) {
			continue
		}
		peers = append(peers, e.EntityID)
	}
	for id := range n.seeds {
		if id != self && !containsPeer(peers, id) {
			peers = append(peers, id)
		}
	}
	return peers
}

func containsPeer(peers []fabric.AgentID, id fabric.AgentID) bool {
	for _, p := range peers {
		if p == id {
			return true
		}
	}
	return false
}

// resolveEndpoint finds where to reach peer: the registry first, static
// seeds as fallback.
func (n *Node) resolveEndpoint(peer fabric.AgentID) (string, error) {
	if e, err := n.reg.Get(peer); err == nil && e.Endpoint != "" {
		return e.Endpoint, nil
	}
	if ep, ok := n.seeds[peer]; ok {
		return ep, nil
	}
	return "", errs.Errorf(errs.NotFound, "no endpoint known for %s", peer)
}

// sendMessage signs nothing itself; the protocol engines sign before
// handing over. Encoded messages beyond the MTU travel as chunk frames.
func (n *Node) sendMessage(peer fabric.AgentID, msg *message.SecureMessage) error {
	endpoint, err := n.resolveEndpoint(peer)
	if err != nil {
		return err
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if len(data) <= fabric.ChunkMTU {
		return n.trans.Send(ctx, endpoint, data)
	}

	frames, err := chunker.Split(data, fabric.ChunkMTU)
	if err != nil {
		return err
	}
	for _, f := range frames {
		env, err := message.New(message.TypeChunk, fabric.AgentID(n.cfg.AgentID),
			map[string]any{"frame": f})
		if err != nil {
			return err
		}
		env.RecipientID = peer
		raw, err := env.Encode()
		if err != nil {
			return err
		}
		if err := n.trans.Send(ctx, endpoint, raw); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) inboundLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-n.trans.Inbox():
			if !ok {
				return
			}
			if err := n.handleBytes(data); err != nil {
				logger.Debug("inbound message dropped", "err", err)
			}
		}
	}
}

func (n *Node) handleBytes(data []byte) error {
	msg, err := message.Decode(data)
	if err != nil {
		return err
	}
	return n.handleMessage(msg)
}

func (n *Node) handleMessage(msg *message.SecureMessage) error {
	if msg.MsgType == message.TypeChunk {
		return n.handleChunk(msg)
	}

	if err := n.sessions.CheckInbound(msg); err != nil {
		n.recordSecurity(msg, err)
		return err
	}

	switch {
	case handshake.Handles(msg.MsgType):
		if err := n.hs.Handle(msg); err != nil {
			n.recordSecurity(msg, err)
			return err
		}
		return nil
	case n.gossip.Handles(msg.MsgType):
		if err := n.gossip.Handle(msg); err != nil {
			n.recordSecurity(msg, err)
			return err
		}
		return nil
	case msg.MsgType == message.TypeTaskDelegate:
		return n.handleTaskDelegate(msg)
	case msg.MsgType == message.TypeTaskResponse:
		return n.handleTaskResponse(msg)
	case msg.MsgType == message.TypePing:
		return n.handlePing(msg)
	case msg.MsgType == message.TypePong:
		return nil
	default:
		return errs.Errorf(errs.InvalidArgument, "unroutable message type %q", msg.MsgType)
	}
}

func (n *Node) handleChunk(msg *message.SecureMessage) error {
	raw, err := json.Marshal(msg.Payload["frame"])
	if err != nil {
		return errs.WithKind(err, errs.InvalidArgument)
	}
	var f chunker.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return errs.WithKind(err, errs.InvalidArgument)
	}

	n.reasmMu.Lock()
	payload, err := n.reasm.Add(f)
	n.reasmMu.Unlock()
	if err != nil || payload == nil {
		return err
	}
	return n.handleBytes(payload)
}

func (n *Node) handleTaskDelegate(msg *message.SecureMessage) error {
	d, err := task.UnwrapMessage(msg)
	if err != nil {
		return err
	}
	if err := n.tasks.Track(d); err != nil {
		return err
	}
	logger.Info("task delegated", "task", d.TaskID, "from", d.DelegatorID, "type", d.TaskType)
	return nil
}

// handleTaskResponse applies a status report from the delegatee to the
// local tracker.
func (n *Node) handleTaskResponse(msg *message.SecureMessage) error {
	taskID, _ := msg.Payload["task_id"].(string)
	status, _ := msg.Payload["status"].(string)
	reason, _ := msg.Payload["reason"].(string)
	if taskID == "" || status == "" {
		return errs.New(errs.InvalidArgument, "task response needs task_id and status")
	}

	id := fabric.TaskID(taskID)
	actor := string(msg.SenderID)
	switch task.Status(status) {
	case task.StatusAssigned:
		return n.tasks.Accept(id, actor)
	case task.StatusRejected:
		return n.tasks.Reject(id, actor, reason)
	case task.StatusInProgress:
		return n.tasks.Progress(id, actor)
	case task.StatusCompleted:
		return n.tasks.Complete(id, actor)
	case task.StatusFailed:
		return n.tasks.Fail(id, actor, reason)
	default:
		return errs.Errorf(errs.InvalidArgument, "unexpected task status %q", status)
	}
}

func (n *Node) handlePing(msg *message.SecureMessage) error {
	pong, err := message.New(message.TypePong, fabric.AgentID(n.cfg.AgentID),
		map[string]any{"echo": msg.Nonce})
	if err != nil {
		return err
	}
	pong.RecipientID = msg.SenderID
	if err := pong.Sign(n.keys); err != nil {
		return err
	}
	return n.sendMessage(msg.SenderID, pong)
}

// recordSecurity writes security-relevant failures to the audit trail.
func (n *Node) recordSecurity(msg *message.SecureMessage, err error) {
	var category string
	switch errs.KindOf(err) {
	case errs.ReplayDetected:
		category = auditdb.CategoryReplay
	case errs.AuthenticationFailed:
		category = auditdb.CategoryAuthFail
	case errs.HandshakeFailed:
		category = auditdb.CategoryHandshake
	case errs.RateLimited:
		category = auditdb.CategoryRateLimit
	default:
		return
	}
	if logErr := n.audit.LogSecurity(&auditdb.SecurityEvent{
		Category:  category,
		Actor:     msg.SenderID,
		SessionID: msg.SessionID,
		Detail:    err.Error(),
	}); logErr != nil {
		logger.Error("audit security event", "category", category, "err", logErr)
	}
}
