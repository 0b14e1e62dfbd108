// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gov

import (
	"context"
	"sort"
	"time"

	"github.com/a2afabric/fabric/co"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/metrics"
)

var metricExecutions = metrics.LazyLoadCounterVec("gov_execution_count", []string{"outcome"})

// ActionHandler executes actions of one target namespace and knows how to
// undo them.
type ActionHandler interface {
	Execute(action Action) error
	Compensate(action Action) error
}

// Executor dispatches proposal actions to namespace handlers.
type Executor struct {
	handlers map[string]ActionHandler
}

// NewExecutor creates an empty executor; the composition root registers
// handlers for the ledger, registry and parameter namespaces.
func NewExecutor() *Executor {
	return &Executor{handlers: make(map[string]ActionHandler)}
}

// Register installs a handler for a namespace.
func (e *Executor) Register(namespace string, h ActionHandler) {
	e.handlers[namespace] = h
}

// run executes actions in order. On failure it compensates the already
// executed actions in reverse order; compensated reports whether that
// rollback fully succeeded.
func (e *Executor) run(actions []Action) (compensated bool, err error) {
	done := 0
	for _, a := range actions {
		h, ok := e.handlers[a.TargetNamespace]
		if !ok {
			err = errs.Errorf(errs.InvalidArgument, "no handler for namespace %q", a.TargetNamespace)
			break
		}
		if execErr := h.Execute(a); execErr != nil {
			err = execErr
			break
		}
		done++
	}
	if err == nil {
		return true, nil
	}

	compensated = true
	for i := done - 1; i >= 0; i-- {
		a := actions[i]
		if compErr := e.handlers[a.TargetNamespace].Compensate(a); compErr != nil {
			logger.Error("compensation failed", "namespace", a.TargetNamespace,
				"method", a.Method, "err", compErr)
			compensated = false
		}
	}
	return compensated, err
}

// Execute runs a queued proposal once its timelock has elapsed.
//
// Paused timelocks and unelapsed delays return retryable errors and leave
// the entry queued. Entries past their grace period expire without
// dispatching anything. An action failure rolls back in reverse order and
// keeps the entry queued for a retry; if the rollback itself fails the
// proposal is marked EXECUTED with the partial-failure flag so an operator
// reconciles by hand.
func (m *Manager) Execute(txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.queue[txID]
	if !ok {
		return errs.Errorf(errs.NotFound, "queued tx %s", txID)
	}
	p, ok := m.proposals[tx.ProposalID]
	if !ok {
		delete(m.queue, txID)
		return errs.Errorf(errs.ProposalNotFound, "proposal %s", tx.ProposalID)
	}

	now := m.now()
	if now.After(tx.ExpiresAt) {
		delete(m.queue, txID)
		p.Status = StatusExpired
		metricExecutions().AddWithLabel(1, map[string]string{"outcome": "expired"})
		return errs.Errorf(errs.Expired, "tx %s grace period passed", txID)
	}
	if m.paused {
		return errs.Errorf(errs.TimelockPaused, "timelock is paused")
	}
	if now.Before(tx.ExecutableAt) {
		return errs.Errorf(errs.TimelockNotElapsed,
			"tx %s executable at %s", txID, tx.ExecutableAt)
	}

	compensated, err := m.executor.run(p.Actions)
	switch {
	case err == nil:
		delete(m.queue, txID)
		p.Status = StatusExecuted
		metricExecutions().AddWithLabel(1, map[string]string{"outcome": "executed"})
		logger.Info("proposal executed", "proposal", p.ProposalID)
		return nil
	case compensated:
		metricExecutions().AddWithLabel(1, map[string]string{"outcome": "rolled_back"})
		logger.Warn("proposal execution failed, rolled back", "proposal", p.ProposalID, "err", err)
		return err
	default:
		delete(m.queue, txID)
		p.Status = StatusExecuted
		p.PartialFailure = true
		metricExecutions().AddWithLabel(1, map[string]string{"outcome": "partial_failure"})
		logger.Error("proposal execution failed and compensation failed",
			"proposal", p.ProposalID, "err", err)
		return err
	}
}

// ProcessQueue executes at most one due entry, oldest executable first.
func (m *Manager) ProcessQueue() {
	m.mu.RLock()
	due := make([]*QueuedTx, 0, len(m.queue))
	now := m.now()
	for _, tx := range m.queue {
		if !now.Before(tx.ExecutableAt) || now.After(tx.ExpiresAt) {
			c := *tx
			due = append(due, &c)
		}
	}
	m.mu.RUnlock()
	if len(due) == 0 {
		return
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExecutableAt.Before(due[j].ExecutableAt) })

	if err := m.Execute(due[0].TxID); err != nil {
		logger.Debug("queue execution attempt", "tx", due[0].TxID, "err", err)
	}
}

// Housekeeping polls the timelock queue until ctx is cancelled.
func (m *Manager) Housekeeping(ctx context.Context, interval time.Duration) {
	co.Loop(ctx, interval, m.ProcessQueue)
}
