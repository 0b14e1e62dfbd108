// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gov

import (
	"sync"
	"time"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/ledger"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
)

var logger = log.WithContext("pkg", "gov")

var (
	metricProposals = metrics.LazyLoadCounterVec("gov_proposal_count", []string{"status"})
	metricVotes     = metrics.LazyLoadCounter("gov_vote_count")
)

// Options tunes the governance pipeline. Zero values take the protocol
// defaults.
type Options struct {
	MinTokensToPropose uint64
	MinTokensToVote    uint64
	DiscussionPeriod   time.Duration
	VotingPeriod       time.Duration
	TimelockDelay      time.Duration
	EmergencyDelay     time.Duration
	GracePeriod        time.Duration
	QuorumPercentage   uint64 // of total supply
	ApprovalThreshold  uint64 // percent of participating power
	MaxVotingPower     uint64
	Guardians          []fabric.AgentID
	GuardianThreshold  int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MinTokensToPropose == 0 {
		out.MinTokensToPropose = fabric.MinTokensToPropose
	}
	if out.MinTokensToVote == 0 {
		out.MinTokensToVote = fabric.MinTokensToVote
	}
	if out.DiscussionPeriod == 0 {
		out.DiscussionPeriod = fabric.DiscussionPeriod
	}
	if out.VotingPeriod == 0 {
		out.VotingPeriod = fabric.VotingPeriod
	}
	if out.TimelockDelay == 0 {
		out.TimelockDelay = fabric.TimelockDelay
	}
	if out.EmergencyDelay == 0 {
		out.EmergencyDelay = fabric.EmergencyDelay
	}
	if out.GracePeriod == 0 {
		out.GracePeriod = fabric.GracePeriod
	}
	if out.QuorumPercentage == 0 {
		out.QuorumPercentage = fabric.QuorumPercentage
	}
	if out.ApprovalThreshold == 0 {
		out.ApprovalThreshold = fabric.ApprovalThreshold
	}
	if out.MaxVotingPower == 0 {
		out.MaxVotingPower = fabric.MaxVotingPower
	}
	if out.GuardianThreshold == 0 {
		out.GuardianThreshold = fabric.GuardianThreshold
	}
	return out
}

// Manager owns proposals, votes and the timelock queue.
type Manager struct {
	opts Options
	book *ledger.Ledger

	mu        sync.RWMutex
	proposals map[fabric.ProposalID]*Proposal
	queue     map[string]*QueuedTx
	paused    bool

	executor *Executor
	now      func() time.Time
}

// New creates a governance manager reading voting power from book.
func New(book *ledger.Ledger, executor *Executor, opts Options) *Manager {
	return &Manager{
		opts:      opts.withDefaults(),
		book:      book,
		proposals: make(map[fabric.ProposalID]*Proposal),
		queue:     make(map[string]*QueuedTx),
		executor:  executor,
		now:       time.Now,
	}
}

// SetNowFunc overrides the wall clock. Tests only.
func (m *Manager) SetNowFunc(now func() time.Time) { m.now = now }

// CreateProposal opens a proposal. The proposer must hold at least the
// proposal threshold. Emergency proposals skip discussion and vote in a
// third of the normal period.
func (m *Manager) CreateProposal(proposer fabric.AgentID, title, description, pType string, actions []Action, emergency bool) (*Proposal, error) {
	if err := proposer.Validate(); err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	if title == "" || len(actions) == 0 {
		return nil, errs.New(errs.InvalidArgument, "title and actions required")
	}
	if balance := m.book.Balance(string(proposer)); balance < m.opts.MinTokensToPropose {
		return nil, errs.Errorf(errs.PreconditionFailed,
			"proposer holds %d, needs %d", balance, m.opts.MinTokensToPropose)
	}

	p := newProposal(proposer, title, description, pType, actions)
	p.Emergency = emergency || pType == TypeEmergency
	emergency = p.Emergency
	now := m.now()
	p.CreatedAt = now
	if emergency {
		p.DiscussionEnd = now
		p.VotingStart = now
		p.VotingEnd = now.Add(m.opts.VotingPeriod / 3)
	} else {
		p.DiscussionEnd = now.Add(m.opts.DiscussionPeriod)
		p.VotingStart = p.DiscussionEnd
		p.VotingEnd = p.VotingStart.Add(m.opts.VotingPeriod)
	}

	m.mu.Lock()
	m.proposals[p.ProposalID] = p
	m.mu.Unlock()

	metricProposals().AddWithLabel(1, map[string]string{"status": string(StatusPending)})
	logger.Info("proposal created", "proposal", p.ProposalID, "proposer", proposer, "emergency", emergency)
	return p.Copy(), nil
}

// Get returns a proposal with its time-derived status resolved.
func (m *Manager) Get(id fabric.ProposalID) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, errs.Errorf(errs.ProposalNotFound, "proposal %s", id)
	}
	m.refreshLocked(p)
	return p.Copy(), nil
}

// Proposals returns a snapshot of all proposals.
func (m *Manager) Proposals() []*Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		m.refreshLocked(p)
		out = append(out, p.Copy())
	}
	return out
}

// refreshLocked rolls the wall-time driven statuses forward. Must hold m.mu.
func (m *Manager) refreshLocked(p *Proposal) {
	now := m.now()
	switch p.Status {
	case StatusPending:
		if !now.Before(p.VotingStart) {
			p.Status = StatusActive
		}
		fallthrough
	case StatusActive:
		if now.After(p.VotingEnd) {
			if m.passedLocked(p) {
				p.Status = StatusSucceeded
			} else {
				p.Status = StatusDefeated
			}
		}
	}
}

// passedLocked applies the quorum and approval rules to p's tally.
func (m *Manager) passedLocked(p *Proposal) bool {
	supply := m.book.TotalSupply()
	quorum := supply * m.opts.QuorumPercentage / 100
	total := p.Tally.Total()
	if total < quorum {
		return false
	}
	if p.Tally.For <= p.Tally.Against {
		return false
	}
	return p.Tally.For*100 >= total*m.opts.ApprovalThreshold
}

// CastVote records a ballot. Power is the voter's balance at cast time,
// capped at the voting-power ceiling. One ballot per voter.
func (m *Manager) CastVote(id fabric.ProposalID, voter fabric.AgentID, choice Choice) error {
	switch choice {
	case ChoiceFor, ChoiceAgainst, ChoiceAbstain:
	default:
		return errs.Errorf(errs.InvalidArgument, "invalid choice %q", choice)
	}

	balance := m.book.Balance(string(voter))
	if balance < m.opts.MinTokensToVote {
		return errs.Errorf(errs.PreconditionFailed,
			"voter holds %d, needs %d", balance, m.opts.MinTokensToVote)
	}
	power := balance
	if power > m.opts.MaxVotingPower {
		power = m.opts.MaxVotingPower
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return errs.Errorf(errs.ProposalNotFound, "proposal %s", id)
	}
	m.refreshLocked(p)

	now := m.now()
	// the voting window is [voting_start, voting_end], end inclusive
	if now.Before(p.VotingStart) || now.After(p.VotingEnd) ||
		(p.Status != StatusActive && p.Status != StatusPending) {
		return errs.Errorf(errs.VotingClosed, "proposal %s is %s", id, p.Status)
	}
	if _, voted := p.Votes[voter]; voted {
		return errs.Errorf(errs.PreconditionFailed, "%s already voted on %s", voter, id)
	}

	p.Votes[voter] = Vote{Voter: voter, Choice: choice, Power: power, CastAt: now}
	switch choice {
	case ChoiceFor:
		p.Tally.For += power
	case ChoiceAgainst:
		p.Tally.Against += power
	case ChoiceAbstain:
		p.Tally.Abstain += power
	}
	metricVotes().Add(1)
	return nil
}

// Cancel withdraws a proposal. Only the proposer may cancel, and only
// before voting starts.
func (m *Manager) Cancel(id fabric.ProposalID, caller fabric.AgentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return errs.Errorf(errs.ProposalNotFound, "proposal %s", id)
	}
	if caller != p.Proposer {
		return errs.Errorf(errs.PreconditionFailed, "only the proposer may cancel %s", id)
	}
	if !m.now().Before(p.VotingStart) {
		return errs.Errorf(errs.PreconditionFailed, "voting on %s has started", id)
	}
	p.Status = StatusCancelled
	metricProposals().AddWithLabel(1, map[string]string{"status": string(StatusCancelled)})
	return nil
}
