// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gov

import (
	"github.com/pborman/uuid"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
)

// Queue moves a SUCCEEDED proposal into the timelock. The entry becomes
// executable after the delay (shorter for emergencies) and expires after
// the grace period.
func (m *Manager) Queue(id fabric.ProposalID) (*QueuedTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, errs.Errorf(errs.ProposalNotFound, "proposal %s", id)
	}
	m.refreshLocked(p)
	if p.Status != StatusSucceeded {
		if p.Status == StatusDefeated && p.Tally.Total() < m.book.TotalSupply()*m.opts.QuorumPercentage/100 {
			return nil, errs.Errorf(errs.QuorumNotReached, "proposal %s missed quorum", id)
		}
		return nil, errs.Errorf(errs.PreconditionFailed, "proposal %s is %s", id, p.Status)
	}

	delay := m.opts.TimelockDelay
	if p.Emergency {
		delay = m.opts.EmergencyDelay
	}
	now := m.now()
	tx := &QueuedTx{
		TxID:         uuid.New(),
		ProposalID:   id,
		QueuedAt:     now,
		ExecutableAt: now.Add(delay),
		ExpiresAt:    now.Add(delay).Add(m.opts.GracePeriod),
	}
	m.queue[tx.TxID] = tx
	p.Status = StatusQueued
	metricProposals().AddWithLabel(1, map[string]string{"status": string(StatusQueued)})
	logger.Info("proposal queued", "proposal", id, "executable_at", tx.ExecutableAt)

	out := *tx
	return &out, nil
}

// Queued returns a snapshot of the timelock queue.
func (m *Manager) Queued() []*QueuedTx {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*QueuedTx, 0, len(m.queue))
	for _, tx := range m.queue {
		c := *tx
		out = append(out, &c)
	}
	return out
}

// Paused reports whether the timelock is paused.
func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

func (m *Manager) isGuardian(id fabric.AgentID) bool {
	for _, g := range m.opts.Guardians {
		if g == id {
			return true
		}
	}
	return false
}

// Pause halts all timelock execution. Any single configured guardian may
// pull the brake.
func (m *Manager) Pause(guardian fabric.AgentID) error {
	if !m.isGuardian(guardian) {
		return errs.Errorf(errs.AuthenticationFailed, "%s is not a guardian", guardian)
	}
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	logger.Warn("timelock paused", "guardian", guardian)
	return nil
}

// Unpause resumes timelock execution.
func (m *Manager) Unpause(guardian fabric.AgentID) error {
	if !m.isGuardian(guardian) {
		return errs.Errorf(errs.AuthenticationFailed, "%s is not a guardian", guardian)
	}
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	logger.Info("timelock unpaused", "guardian", guardian)
	return nil
}

// CancelQueued records a guardian's cancel vote on a queued entry. Once
// the guardian threshold of distinct guardians agrees, the entry is
// removed and the proposal is cancelled.
func (m *Manager) CancelQueued(txID string, guardian fabric.AgentID, reason string) error {
	if !m.isGuardian(guardian) {
		return errs.Errorf(errs.AuthenticationFailed, "%s is not a guardian", guardian)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.queue[txID]
	if !ok {
		return errs.Errorf(errs.NotFound, "queued tx %s", txID)
	}
	for _, g := range tx.CancelVotes {
		if g == guardian {
			return errs.Errorf(errs.PreconditionFailed, "%s already voted to cancel %s", guardian, txID)
		}
	}
	tx.CancelVotes = append(tx.CancelVotes, guardian)
	if len(tx.CancelVotes) < m.opts.GuardianThreshold {
		logger.Info("guardian cancel vote recorded", "tx", txID, "guardian", guardian,
			"votes", len(tx.CancelVotes), "needed", m.opts.GuardianThreshold)
		return nil
	}

	delete(m.queue, txID)
	if p, ok := m.proposals[tx.ProposalID]; ok {
		p.Status = StatusCancelled
	}
	metricProposals().AddWithLabel(1, map[string]string{"status": string(StatusCancelled)})
	logger.Warn("queued proposal cancelled by guardians", "tx", txID, "reason", reason)
	return nil
}
