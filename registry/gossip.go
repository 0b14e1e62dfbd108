// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a2afabric/fabric/co"
	"github.com/a2afabric/fabric/cry"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/message"
	"github.com/a2afabric/fabric/metrics"
	"github.com/a2afabric/fabric/ratelimit"
)

var (
	metricGossipRounds  = metrics.LazyLoadCounter("registry_gossip_round_count")
	metricGossipEntries = metrics.LazyLoadCounterVec("registry_gossip_entries_count", []string{"dir"})
)

// SendFunc delivers a message to a peer.
type SendFunc func(peer fabric.AgentID, msg *message.SecureMessage) error

// PeerFunc returns the current gossip peer candidates, excluding self.
type PeerFunc func() []fabric.AgentID

// Gossiper runs the anti-entropy exchange: push a digest to a few random
// peers each round, answer digests with the entries the peer is missing.
type Gossiper struct {
	reg      *Registry
	selfID   fabric.AgentID
	keys     *cry.KeyPair
	send     SendFunc
	peers    PeerFunc
	limiter  *ratelimit.Limiter
	interval time.Duration
	fanout   int
	goes     co.Goes
	cancel   context.CancelFunc
}

// NewGossiper wires a gossiper over reg. send and peers come from the node's
// transport layer.
func NewGossiper(reg *Registry, selfID fabric.AgentID, keys *cry.KeyPair, send SendFunc, peers PeerFunc) *Gossiper {
	return &Gossiper{
		reg:      reg,
		selfID:   selfID,
		keys:     keys,
		send:     send,
		peers:    peers,
		limiter:  ratelimit.New(fabric.RateLimitSteady, fabric.RateLimitBurst),
		interval: fabric.GossipInterval,
		fanout:   fabric.MaxGossipPeers,
	}
}

// SetInterval overrides the gossip cadence. Tests only.
func (g *Gossiper) SetInterval(d time.Duration) { g.interval = d }

// Start launches the gossip loop.
func (g *Gossiper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.goes.Go(func() {
		co.Loop(ctx, g.interval, g.Round)
	})
	logger.Info("gossip loop started", "interval", g.interval, "fanout", g.fanout)
}

// Stop halts the loop and waits for in-flight rounds.
func (g *Gossiper) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.goes.Wait()
}

// Round pushes the local digest to up to fanout random peers.
func (g *Gossiper) Round() {
	peers := g.peers()
	if len(peers) == 0 {
		return
	}
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if len(peers) > g.fanout {
		peers = peers[:g.fanout]
	}

	digest := g.reg.Digest()
	var group errgroup.Group
	for _, peer := range peers {
		peer := peer
		group.Go(func() error {
			if err := g.sendDigest(peer, digest); err != nil {
				logger.Debug("gossip digest failed", "peer", peer, "err", err)
			}
			return nil
		})
	}
	group.Wait() //nolint:errcheck // workers never return errors
	metricGossipRounds().Add(1)
}

func (g *Gossiper) sendDigest(peer fabric.AgentID, digest map[fabric.AgentID]uint64) error {
	msg, err := message.New(message.TypeGossipDigest, g.selfID, map[string]any{
		"digest": digest,
	})
	if err != nil {
		return err
	}
	msg.RecipientID = peer
	if err := msg.Sign(g.keys); err != nil {
		return err
	}
	return g.send(peer, msg)
}

func (g *Gossiper) sendEntries(peer fabric.AgentID, entries []*Entry, withDigest bool) error {
	payload := map[string]any{"entries": entries}
	if withDigest {
		payload["digest"] = g.reg.Digest()
	}
	msg, err := message.New(message.TypeGossipEntries, g.selfID, payload)
	if err != nil {
		return err
	}
	msg.RecipientID = peer
	if err := msg.Sign(g.keys); err != nil {
		return err
	}
	metricGossipEntries().AddWithLabel(int64(len(entries)), map[string]string{"dir": "out"})
	return g.send(peer, msg)
}

// Handles reports whether msgType belongs to the gossip exchange.
func (g *Gossiper) Handles(msgType string) bool {
	return msgType == message.TypeGossipDigest || msgType == message.TypeGossipEntries
}

// Handle dispatches an inbound gossip message.
func (g *Gossiper) Handle(msg *message.SecureMessage) error {
	if !g.limiter.Allow(string(msg.SenderID)) {
		return errs.Errorf(errs.RateLimited, "gossip from %s", msg.SenderID)
	}
	if err := g.verifySender(msg); err != nil {
		return err
	}

	switch msg.MsgType {
	case message.TypeGossipDigest:
		return g.onDigest(msg)
	case message.TypeGossipEntries:
		return g.onEntries(msg)
	default:
		return errs.Errorf(errs.InvalidArgument, "unexpected gossip type %s", msg.MsgType)
	}
}

// verifySender checks the signature against the sender's registered key.
// Unknown senders pass unverified so that bootstrap gossip can seed an
// empty registry; their entries still only merge if causally newer.
func (g *Gossiper) verifySender(msg *message.SecureMessage) error {
	entry, err := g.reg.Get(msg.SenderID)
	if err != nil || len(entry.PublicKey) == 0 {
		logger.Debug("gossip from unregistered sender", "sender", msg.SenderID)
		return nil
	}
	return msg.Verify(entry.PublicKey)
}

// onDigest answers with entries the peer is missing plus our own digest,
// so the peer can push back what we are missing.
func (g *Gossiper) onDigest(msg *message.SecureMessage) error {
	digest, err := digestFromPayload(msg)
	if err != nil {
		return err
	}
	newer := g.reg.EntriesNewer(digest)
	return g.sendEntries(msg.SenderID, newer, true)
}

// onEntries merges the received entries. When the message also carries the
// peer's digest this is the first half of a push-pull round, so we answer
// with our newer entries without a digest, terminating the exchange.
func (g *Gossiper) onEntries(msg *message.SecureMessage) error {
	entries, err := entriesFromPayload(msg)
	if err != nil {
		return err
	}
	metricGossipEntries().AddWithLabel(int64(len(entries)), map[string]string{"dir": "in"})
	for _, e := range entries {
		if _, err := g.reg.Merge(e); err != nil {
			logger.Debug("gossip merge rejected", "entity", e.EntityID, "err", err)
		}
	}

	if _, ok := msg.Payload["digest"]; !ok {
		return nil
	}
	digest, err := digestFromPayload(msg)
	if err != nil {
		return err
	}
	if newer := g.reg.EntriesNewer(digest); len(newer) > 0 {
		return g.sendEntries(msg.SenderID, newer, false)
	}
	return nil
}

func digestFromPayload(msg *message.SecureMessage) (map[fabric.AgentID]uint64, error) {
	raw, err := json.Marshal(msg.Payload["digest"])
	if err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	var digest map[fabric.AgentID]uint64
	if err := json.Unmarshal(raw, &digest); err != nil {
		return nil, errs.Errorf(errs.InvalidArgument, "malformed gossip digest: %v", err)
	}
	return digest, nil
}

func entriesFromPayload(msg *message.SecureMessage) ([]*Entry, error) {
	raw, err := json.Marshal(msg.Payload["entries"])
	if err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	var entries []*Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errs.Errorf(errs.InvalidArgument, "malformed gossip entries: %v", err)
	}
	return entries, nil
}
