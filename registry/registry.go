// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package registry is the eventually-consistent agent directory. Every node
// owns its local mutations and merges remote state as a last-writer-wins
// CRDT ordered by vector clocks, with HLC then origin-node tie-breaks.
package registry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"github.com/a2afabric/fabric/cache"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/kv"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
	"github.com/a2afabric/fabric/vclock"
)

var logger = log.WithContext("pkg", "registry")

var (
	metricEntries   = metrics.LazyLoadGauge("registry_entry_count")
	metricMerges    = metrics.LazyLoadCounterVec("registry_merge_count", []string{"outcome"})
	metricTombstone = metrics.LazyLoadCounter("registry_tombstone_gc_count")
)

const capCacheSize = 128

// MergeOutcome describes what a merge did.
type MergeOutcome string

const (
	MergeAdopted   MergeOutcome = "adopted"   // remote replaced or created local state
	MergeRejected  MergeOutcome = "rejected"  // remote was stale
	MergeShadowed  MergeOutcome = "shadowed"  // local tombstone suppressed the remote
	MergeConverged MergeOutcome = "converged" // concurrent, local fields won, clocks joined
)

// EntryEvent is posted on every entry change.
type EntryEvent struct {
	Entry  *Entry
	Source string // "local", "merge" or "gc"
}

// Options tunes the registry.
type Options struct {
	LivenessTimeout time.Duration
	TombstoneTTL    time.Duration
	ClockSkewBound  time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.LivenessTimeout == 0 {
		out.LivenessTimeout = fabric.LivenessTimeout
	}
	if out.TombstoneTTL == 0 {
		out.TombstoneTTL = fabric.TombstoneTTL
	}
	if out.ClockSkewBound == 0 {
		out.ClockSkewBound = fabric.TimestampTolerance
	}
	return out
}

// Registry holds this node's view of the directory.
type Registry struct {
	nodeID fabric.NodeID
	opts   Options
	clock  *vclock.Clock
	store  kv.Store

	mu      sync.RWMutex
	entries map[fabric.AgentID]*Entry

	capCache *cache.LRU

	feed  event.Feed
	scope event.SubscriptionScope

	now func() time.Time
}

// New creates a registry persisting through store (pass nil for a purely
// in-memory view) and loads any persisted entries.
func New(nodeID fabric.NodeID, store kv.Store, opts Options) (*Registry, error) {
	capCache, err := cache.NewLRU(capCacheSize)
	if err != nil {
		return nil, err
	}
	o := opts.withDefaults()
	r := &Registry{
		nodeID:   nodeID,
		opts:     o,
		clock:    vclock.NewClock(o.ClockSkewBound),
		store:    store,
		entries:  make(map[fabric.AgentID]*Entry),
		capCache: capCache,
		now:      time.Now,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// SetNowFunc overrides the wall clock. Tests only.
func (r *Registry) SetNowFunc(now func() time.Time) {
	r.now = now
	r.clock.SetNowFunc(now)
}

// NodeID returns the owning node id.
func (r *Registry) NodeID() fabric.NodeID { return r.nodeID }

func (r *Registry) load() error {
	if r.store == nil {
		return nil
	}
	it := r.store.Iterate(kv.Range{})
	defer it.Release()
	for it.Next() {
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return errors.Wrap(err, "load registry entry")
		}
		r.entries[e.EntityID] = &e
	}
	if err := it.Error(); err != nil {
		return errors.Wrap(err, "iterate registry store")
	}
	metricEntries().Set(int64(len(r.entries)))
	return nil
}

// persist must be called with r.mu held.
func (r *Registry) persist(e *Entry) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error("marshal registry entry", "entity", e.EntityID, "err", err)
		return
	}
	if err := r.store.Put([]byte(e.EntityID), data); err != nil {
		logger.Error("persist registry entry", "entity", e.EntityID, "err", err)
	}
}

func (r *Registry) emit(e *Entry, source string) {
	r.capCache.Purge()
	r.feed.Send(EntryEvent{Entry: e.Copy(), Source: source})
}

// SubscribeEvents subscribes to entry changes.
func (r *Registry) SubscribeEvents(ch chan EntryEvent) event.Subscription {
	return r.scope.Track(r.feed.Subscribe(ch))
}

// RegisterLocal creates or updates an entry owned by this node, bumping
// its vector clock and HLC.
func (r *Registry) RegisterLocal(identity *fabric.Identity) (*Entry, error) {
	if err := identity.AgentID.Validate(); err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.entries[identity.AgentID]
	if ok && e.Status == StatusTombstone {
		return nil, errs.Errorf(errs.PreconditionFailed,
			"entity %s is tombstoned until gc", identity.AgentID)
	}
	if !ok {
		e = &Entry{
			EntityID:     identity.AgentID,
			RegisteredAt: now,
			VClock:       vclock.VC{},
		}
		r.entries[identity.AgentID] = e
	}

	e.DisplayName = identity.DisplayName
	e.Endpoint = identity.Endpoint
	e.Capabilities = append([]string(nil), identity.Capabilities...)
	e.PublicKey = append([]byte(nil), identity.PublicKey...)
	e.LastHeartbeat = now
	e.Version++
	e.OriginNodeID = r.nodeID
	e.VClock.Bump(string(r.nodeID))
	e.HLC = r.clock.Tick()
	e.Status = StatusActive

	r.persist(e)
	metricEntries().Set(int64(len(r.entries)))
	r.emit(e, "local")
	logger.Debug("registered local entity", "entity", e.EntityID, "version", e.Version)
	return e.Copy(), nil
}

// UpdateHeartbeat refreshes liveness without bumping the version.
func (r *Registry) UpdateHeartbeat(id fabric.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Status == StatusTombstone {
		return errs.Errorf(errs.NotFound, "entity %s", id)
	}
	e.LastHeartbeat = r.now()
	r.persist(e)
	return nil
}

// BumpLocal re-announces an entry owned by this node, bumping version and
// clocks without changing its fields. Used to win back concurrent merges.
func (r *Registry) BumpLocal(id fabric.AgentID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.Status == StatusTombstone {
		return nil, errs.Errorf(errs.NotFound, "entity %s", id)
	}
	e.Version++
	e.OriginNodeID = r.nodeID
	e.VClock.Bump(string(r.nodeID))
	e.HLC = r.clock.Tick()
	e.LastHeartbeat = r.now()

	r.persist(e)
	r.emit(e, "local")
	return e.Copy(), nil
}

// UnregisterLocal tombstones an entry. The tombstone is retained for the
// tombstone TTL so it shadows concurrent resurrections.
func (r *Registry) UnregisterLocal(id fabric.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return errs.Errorf(errs.NotFound, "entity %s", id)
	}
	if e.Status == StatusTombstone {
		return nil
	}
	e.Status = StatusTombstone
	e.Version++
	e.OriginNodeID = r.nodeID
	e.VClock.Bump(string(r.nodeID))
	e.HLC = r.clock.Tick()

	r.persist(e)
	r.emit(e, "local")
	logger.Debug("tombstoned local entity", "entity", id)
	return nil
}

// Suspend marks an entry suspended. Used by governance actions.
func (r *Registry) Suspend(id fabric.AgentID) error {
	return r.setStatus(id, StatusSuspended)
}

// Activate re-activates a suspended entry.
func (r *Registry) Activate(id fabric.AgentID) error {
	return r.setStatus(id, StatusActive)
}

func (r *Registry) setStatus(id fabric.AgentID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return errs.Errorf(errs.NotFound, "entity %s", id)
	}
	if e.Status == StatusTombstone {
		return errs.Errorf(errs.PreconditionFailed, "entity %s is tombstoned", id)
	}
	e.Status = status
	e.Version++
	e.OriginNodeID = r.nodeID
	e.VClock.Bump(string(r.nodeID))
	e.HLC = r.clock.Tick()
	r.persist(e)
	r.emit(e, "local")
	return nil
}

// Merge folds a remote entry into local state.
func (r *Registry) Merge(remote *Entry) (MergeOutcome, error) {
	if err := remote.EntityID.Validate(); err != nil {
		return MergeRejected, errs.WithKind(err, errs.InvalidArgument)
	}
	if _, err := r.clock.Observe(remote.HLC); err != nil {
		return MergeRejected, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	local, ok := r.entries[remote.EntityID]
	if !ok {
		adopted := remote.Copy()
		r.entries[remote.EntityID] = adopted
		r.persist(adopted)
		metricEntries().Set(int64(len(r.entries)))
		r.emit(adopted, "merge")
		metricMerges().AddWithLabel(1, map[string]string{"outcome": string(MergeAdopted)})
		return MergeAdopted, nil
	}

	outcome := r.mergeLocked(local, remote)
	metricMerges().AddWithLabel(1, map[string]string{"outcome": string(outcome)})
	return outcome, nil
}

func (r *Registry) mergeLocked(local, remote *Entry) MergeOutcome {
	// a local tombstone shadows any remote activation until gc
	if local.Status == StatusTombstone && remote.Status != StatusTombstone {
		local.VClock = local.VClock.Merge(remote.VClock)
		r.persist(local)
		return MergeShadowed
	}

	switch remote.VClock.Compare(local.VClock) {
	case vclock.After:
		r.adoptLocked(local, remote)
		return MergeAdopted
	case vclock.Before, vclock.Equal:
		return MergeRejected
	default: // concurrent
		if r.remoteWinsTie(local, remote) {
			r.adoptLocked(local, remote)
			return MergeAdopted
		}
		local.VClock = local.VClock.Merge(remote.VClock)
		r.persist(local)
		return MergeConverged
	}
}

// remoteWinsTie breaks a concurrent-update tie: tombstones shadow,
// then higher HLC, then lexicographically larger origin node id.
func (r *Registry) remoteWinsTie(local, remote *Entry) bool {
	if remote.Status == StatusTombstone && local.Status != StatusTombstone {
		return true
	}
	if c := remote.HLC.Compare(local.HLC); c != 0 {
		return c > 0
	}
	return remote.OriginNodeID > local.OriginNodeID
}

// adoptLocked replaces local fields with remote's, joining vector clocks.
func (r *Registry) adoptLocked(local, remote *Entry) {
	merged := local.VClock.Merge(remote.VClock)
	*local = *remote.Copy()
	local.VClock = merged
	r.persist(local)
	r.emit(local, "merge")
}

// Get returns the entry for id from deterministic local state.
func (r *Registry) Get(id fabric.AgentID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || e.Status == StatusTombstone {
		return nil, errs.Errorf(errs.NotFound, "entity %s", id)
	}
	return e.Copy(), nil
}

// FindByCapability returns active entries exposing cap. Results are
// best-effort consistent. Callers own the returned slice; the cached one
// is never handed out directly.
func (r *Registry) FindByCapability(cap string) []*Entry {
	if v, ok := r.capCache.Get(cap); ok {
		return append([]*Entry(nil), v.([]*Entry)...)
	}

	r.mu.RLock()
	var out []*Entry
	for _, e := range r.entries {
		if e.Status == StatusActive && e.HasCapability(cap) {
			out = append(out, e.Copy())
		}
	}
	r.mu.RUnlock()

	r.capCache.Add(cap, out)
	return append([]*Entry(nil), out...)
}

// Entries returns a snapshot of all non-tombstone entries.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Status != StatusTombstone {
			out = append(out, e.Copy())
		}
	}
	return out
}

// IsAlive reports whether the entry heartbeated within the liveness window.
// Entries that fell silent are reported dead but not removed; another node
// may still refresh them.
func (r *Registry) IsAlive(e *Entry) bool {
	return r.now().Sub(e.LastHeartbeat) <= r.opts.LivenessTimeout
}

// Digest summarizes local state for gossip: entity id to the max vector
// clock component.
func (r *Registry) Digest() map[fabric.AgentID]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[fabric.AgentID]uint64, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.VClock.Max()
	}
	return out
}

// EntriesNewer returns entries the peer's digest has not caught up with.
func (r *Registry) EntriesNewer(digest map[fabric.AgentID]uint64) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for id, e := range r.entries {
		if e.VClock.Max() > digest[id] {
			out = append(out, e.Copy())
		}
	}
	return out
}

// GCTombstones drops tombstones older than the tombstone TTL. Expiry is
// judged by the tombstone's HLC wall time.
func (r *Registry) GCTombstones() int {
	cutoff := r.now().Add(-r.opts.TombstoneTTL).UnixMilli()

	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped int
	for id, e := range r.entries {
		if e.Status == StatusTombstone && e.HLC.WallMS < cutoff {
			delete(r.entries, id)
			if r.store != nil {
				if err := r.store.Delete([]byte(id)); err != nil {
					logger.Error("delete tombstone", "entity", id, "err", err)
				}
			}
			dropped++
		}
	}
	if dropped > 0 {
		metricTombstone().Add(int64(dropped))
		metricEntries().Set(int64(len(r.entries)))
		logger.Debug("gc'd tombstones", "count", dropped)
	}
	return dropped
}

// Close releases subscriptions.
func (r *Registry) Close() {
	r.scope.Close()
}
