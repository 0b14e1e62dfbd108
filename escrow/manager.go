// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package escrow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/a2afabric/fabric/co"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/kv"
	"github.com/a2afabric/fabric/ledger"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
)

var logger = log.WithContext("pkg", "escrow")

var (
	metricStatus = metrics.LazyLoadCounterVec("escrow_transition_count", []string{"to"})
	metricLocked = metrics.LazyLoadGauge("escrow_locked_total")
)

// Manager owns escrow lifecycles. Every status change and its ledger
// movement happen under one lock: a failed transfer leaves the status
// untouched, a failed second leg rolls the first back.
type Manager struct {
	mu      sync.RWMutex
	escrows map[fabric.EscrowID]*Escrow
	byTask  map[fabric.TaskID]fabric.EscrowID // active escrow per task
	book    *ledger.Ledger
	store   kv.Store
	now     func() time.Time
}

// New loads a manager from store (nil for in-memory only).
func New(book *ledger.Ledger, store kv.Store) (*Manager, error) {
	m := &Manager{
		escrows: make(map[fabric.EscrowID]*Escrow),
		byTask:  make(map[fabric.TaskID]fabric.EscrowID),
		book:    book,
		store:   store,
		now:     time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// SetNowFunc overrides the wall clock. Tests only.
func (m *Manager) SetNowFunc(now func() time.Time) { m.now = now }

func (m *Manager) load() error {
	if m.store == nil {
		return nil
	}
	it := m.store.Iterate(kv.Range{})
	defer it.Release()
	for it.Next() {
		var e Escrow
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return errs.Errorf(errs.Internal, "corrupt escrow record %q: %v", it.Key(), err)
		}
		m.escrows[e.EscrowID] = &e
		if !e.Status.Terminal() {
			m.byTask[e.TaskID] = e.EscrowID
		}
	}
	return it.Error()
}

// persist must be called with m.mu held.
func (m *Manager) persist(e *Escrow) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error("marshal escrow", "escrow", e.EscrowID, "err", err)
		return
	}
	if err := m.store.Put([]byte(e.EscrowID), data); err != nil {
		logger.Error("persist escrow", "escrow", e.EscrowID, "err", err)
	}
}

func (m *Manager) setStatus(e *Escrow, to Status) {
	e.Status = to
	m.persist(e)
	metricStatus().AddWithLabel(1, map[string]string{"to": string(to)})
}

// Create opens a CREATED escrow for a task. At most one non-terminal
// escrow may exist per task.
func (m *Manager) Create(taskID fabric.TaskID, client, provider fabric.AgentID, amount uint64, deadline time.Time) (*Escrow, error) {
	if err := taskID.Validate(); err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	if err := client.Validate(); err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	if err := provider.Validate(); err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	if client == provider {
		return nil, errs.New(errs.InvalidArgument, "client equals provider")
	}
	if amount == 0 {
		return nil, errs.New(errs.InvalidArgument, "zero escrow amount")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byTask[taskID]; ok {
		return nil, errs.Errorf(errs.PreconditionFailed,
			"task %s already has active escrow %s", taskID, existing)
	}
	e := newEscrow(taskID, client, provider, amount, deadline)
	m.escrows[e.EscrowID] = e
	m.byTask[taskID] = e.EscrowID
	m.persist(e)
	logger.Debug("escrow created", "escrow", e.EscrowID, "task", taskID, "amount", amount)
	return e.Copy(), nil
}

// Get returns the escrow.
func (m *Manager) Get(id fabric.EscrowID) (*Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.escrows[id]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "escrow %s", id)
	}
	return e.Copy(), nil
}

// ByTask returns the active escrow of a task.
func (m *Manager) ByTask(taskID fabric.TaskID) (*Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byTask[taskID]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "no active escrow for task %s", taskID)
	}
	return m.escrows[id].Copy(), nil
}

func (m *Manager) locked(id fabric.EscrowID, want ...Status) (*Escrow, error) {
	e, ok := m.escrows[id]
	if !ok {
		return nil, errs.Errorf(errs.NotFound, "escrow %s", id)
	}
	for _, w := range want {
		if e.Status == w {
			return e, nil
		}
	}
	return nil, errs.Errorf(errs.PreconditionFailed, "escrow %s is %s", id, e.Status)
}

// Lock debits the client and moves CREATED to LOCKED. The tokens leave the
// client exactly here.
func (m *Manager) Lock(id fabric.EscrowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.locked(id, StatusCreated)
	if err != nil {
		return err
	}
	if err := m.book.Transfer(string(e.ClientID), e.Account(), e.Amount, "escrow:lock:"+string(id)); err != nil {
		return err
	}
	m.setStatus(e, StatusLocked)
	metricLocked().Add(int64(e.Amount))
	return nil
}

// MarkCompleted records the provider's claim of completion, LOCKED to
// COMPLETED. No money moves until verification releases.
func (m *Manager) MarkCompleted(id fabric.EscrowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.locked(id, StatusLocked)
	if err != nil {
		return err
	}
	m.setStatus(e, StatusCompleted)
	return nil
}

// Release credits the provider, COMPLETED to RELEASED. Called after
// verification passes.
func (m *Manager) Release(id fabric.EscrowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.locked(id, StatusCompleted)
	if err != nil {
		return err
	}
	if err := m.book.Transfer(e.Account(), string(e.ProviderID), e.Amount, "escrow:release:"+string(id)); err != nil {
		return err
	}
	m.finish(e, StatusReleased)
	metricLocked().Add(-int64(e.Amount))
	return nil
}

// Dispute moves LOCKED to DISPUTED. Either party may open it.
func (m *Manager) Dispute(id fabric.EscrowID, party fabric.AgentID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.locked(id, StatusLocked)
	if err != nil {
		return err
	}
	if party != e.ClientID && party != e.ProviderID {
		return errs.Errorf(errs.PreconditionFailed, "%s is not a party to escrow %s", party, id)
	}
	e.DisputeReason = reason
	m.setStatus(e, StatusDisputed)
	logger.Info("escrow disputed", "escrow", id, "party", party, "reason", reason)
	return nil
}

// Resolve settles a DISPUTED escrow and distributes all funds:
// CLIENT_WINS refunds everything, PROVIDER_WINS credits everything,
// SPLIT credits amount to the provider and refunds the remainder.
// With the money fully distributed the escrow terminates at RELEASED.
func (m *Manager) Resolve(id fabric.EscrowID, resolution Resolution, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.locked(id, StatusDisputed)
	if err != nil {
		return err
	}

	var toProvider uint64
	switch resolution {
	case ResolutionClientWins:
		toProvider = 0
	case ResolutionProviderWins:
		toProvider = e.Amount
	case ResolutionSplit:
		if amount > e.Amount {
			return errs.Errorf(errs.InvalidArgument, "split %d exceeds escrow amount %d", amount, e.Amount)
		}
		toProvider = amount
	default:
		return errs.Errorf(errs.InvalidArgument, "invalid resolution %q", resolution)
	}
	toClient := e.Amount - toProvider

	ref := "escrow:resolve:" + string(id)
	if toProvider > 0 {
		if err := m.book.Transfer(e.Account(), string(e.ProviderID), toProvider, ref); err != nil {
			return err
		}
	}
	if toClient > 0 {
		if err := m.book.Transfer(e.Account(), string(e.ClientID), toClient, ref); err != nil {
			if toProvider > 0 {
				// claw the first leg back so funds stay in escrow
				if rbErr := m.book.Transfer(string(e.ProviderID), e.Account(), toProvider, ref+":rollback"); rbErr != nil {
					logger.Error("resolution rollback failed", "escrow", id, "err", rbErr)
				}
			}
			return err
		}
	}

	e.Resolution = resolution
	e.ResolutionAmount = toProvider
	m.finish(e, StatusReleased)
	metricLocked().Add(-int64(e.Amount))
	logger.Info("escrow resolved", "escrow", id, "resolution", resolution, "to_provider", toProvider)
	return nil
}

// Cancel aborts a CREATED or LOCKED escrow, refunding any locked funds.
func (m *Manager) Cancel(id fabric.EscrowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.locked(id, StatusCreated, StatusLocked)
	if err != nil {
		return err
	}
	if e.Status == StatusLocked {
		if err := m.book.Transfer(e.Account(), string(e.ClientID), e.Amount, "escrow:cancel:"+string(id)); err != nil {
			return err
		}
		metricLocked().Add(-int64(e.Amount))
	}
	m.finish(e, StatusCancelled)
	return nil
}

// finish records a terminal status. Must hold m.mu.
func (m *Manager) finish(e *Escrow, to Status) {
	e.ReleasedAt = m.now()
	delete(m.byTask, e.TaskID)
	m.setStatus(e, to)
}

// SweepExpired refunds LOCKED escrows past their deadline and returns how
// many it expired.
func (m *Manager) SweepExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired int
	for id, e := range m.escrows {
		// at exactly the deadline the escrow is still live
		if e.Status != StatusLocked || e.Deadline.IsZero() || !now.After(e.Deadline) {
			continue
		}
		if err := m.book.Transfer(e.Account(), string(e.ClientID), e.Amount, "escrow:expire:"+string(id)); err != nil {
			logger.Error("expiry refund failed", "escrow", id, "err", err)
			continue
		}
		m.finish(e, StatusExpired)
		metricLocked().Add(-int64(e.Amount))
		expired++
	}
	if expired > 0 {
		logger.Info("expired escrows", "count", expired)
	}
	return expired
}

// Housekeeping runs the expiry sweeper until ctx is cancelled.
func (m *Manager) Housekeeping(ctx context.Context) {
	co.Loop(ctx, fabric.EscrowExpiryPoll, func() { m.SweepExpired() })
}
