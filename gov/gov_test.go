// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gov

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/ledger"
)

type govFixture struct {
	book    *ledger.Ledger
	params  *ParamsHandler
	manager *Manager
	now     time.Time
}

// newGovFixture funds the scenario accounts: proposer 1500, voters 6000 /
// 2000 / 1000, and a filler bringing total supply to 50000.
func newGovFixture(t *testing.T) *govFixture {
	t.Helper()

	book, err := ledger.New(nil, nil)
	require.NoError(t, err)
	require.NoError(t, book.Mint("proposer", 1500, ""))
	require.NoError(t, book.Mint("voter-big", 6000, ""))
	require.NoError(t, book.Mint("voter-against", 2000, ""))
	require.NoError(t, book.Mint("voter-abstain", 1000, ""))
	require.NoError(t, book.Mint("treasury", 39_500, ""))
	require.Equal(t, uint64(50_000), book.TotalSupply())

	params := NewParamsHandler(map[string]any{"gossip_interval_seconds": 30})
	executor := NewExecutor()
	executor.Register("params", params)
	executor.Register("ledger", NewLedgerHandler(book))

	f := &govFixture{
		book:   book,
		params: params,
		now:    time.Now(),
	}
	f.manager = New(book, executor, Options{
		Guardians: []fabric.AgentID{"guardian-1", "guardian-2"},
	})
	f.manager.SetNowFunc(func() time.Time { return f.now })
	return f
}

func paramChangeActions() []Action {
	return []Action{{
		TargetNamespace: "params",
		Method:          "set",
		Params:          map[string]any{"key": "gossip_interval_seconds", "value": 10},
	}}
}

func (f *govFixture) createAndPass(t *testing.T) *Proposal {
	t.Helper()
	p, err := f.manager.CreateProposal("proposer", "tune gossip", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)

	f.now = p.VotingStart.Add(time.Minute)
	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-big", ChoiceFor))
	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-against", ChoiceAgainst))
	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-abstain", ChoiceAbstain))
	f.now = p.VotingEnd.Add(time.Second)
	return p
}

func TestProposalThreshold(t *testing.T) {
	f := newGovFixture(t)

	_, err := f.manager.CreateProposal("voter-abstain", "t", "", TypeParameterChange, paramChangeActions(), false)
	assert.Equal(t, errs.PreconditionFailed, errs.KindOf(err))

	_, err = f.manager.CreateProposal("proposer", "", "", TypeParameterChange, paramChangeActions(), false)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	p, err := f.manager.CreateProposal("proposer", "t", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, p.DiscussionEnd, p.VotingStart)
	assert.Equal(t, fabric.DiscussionPeriod, p.VotingStart.Sub(p.CreatedAt))
	assert.Equal(t, fabric.VotingPeriod, p.VotingEnd.Sub(p.VotingStart))
}

func TestEmergencyTimeline(t *testing.T) {
	f := newGovFixture(t)

	p, err := f.manager.CreateProposal("proposer", "hotfix", "", TypeParameterChange, paramChangeActions(), true)
	require.NoError(t, err)
	// discussion skipped, voting period shortened to a third
	assert.Equal(t, p.CreatedAt, p.VotingStart)
	assert.Equal(t, fabric.VotingPeriod/3, p.VotingEnd.Sub(p.VotingStart))

	// votable immediately
	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-big", ChoiceFor))
}

func TestVotingWindowAndPower(t *testing.T) {
	f := newGovFixture(t)
	p, err := f.manager.CreateProposal("proposer", "t", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)

	// before voting starts
	err = f.manager.CastVote(p.ProposalID, "voter-big", ChoiceFor)
	assert.Equal(t, errs.VotingClosed, errs.KindOf(err))

	// at the voting_end instant: accept
	f.now = p.VotingEnd
	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-big", ChoiceFor))

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, uint64(6000), got.Tally.For)

	// one tick later: reject
	f.now = p.VotingEnd.Add(time.Second)
	err = f.manager.CastVote(p.ProposalID, "voter-against", ChoiceAgainst)
	assert.Equal(t, errs.VotingClosed, errs.KindOf(err))
}

func TestDoubleVoteRejected(t *testing.T) {
	f := newGovFixture(t)
	p, err := f.manager.CreateProposal("proposer", "t", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)
	f.now = p.VotingStart

	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-big", ChoiceFor))
	err = f.manager.CastVote(p.ProposalID, "voter-big", ChoiceAgainst)
	assert.Equal(t, errs.PreconditionFailed, errs.KindOf(err))

	// tallies unchanged after the rejected attempt
	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, Tally{For: 6000}, got.Tally)
}

func TestVotingPowerCapAndMinimum(t *testing.T) {
	f := newGovFixture(t)
	require.NoError(t, f.book.Mint("whale", 2_000_000, ""))
	require.NoError(t, f.book.Mint("pauper", 50, ""))

	p, err := f.manager.CreateProposal("proposer", "t", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)
	f.now = p.VotingStart

	require.NoError(t, f.manager.CastVote(p.ProposalID, "whale", ChoiceFor))
	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, uint64(fabric.MaxVotingPower), got.Tally.For)

	err = f.manager.CastVote(p.ProposalID, "pauper", ChoiceFor)
	assert.Equal(t, errs.PreconditionFailed, errs.KindOf(err))
}

func TestQuorumAndApproval(t *testing.T) {
	f := newGovFixture(t)

	// only 1000 of 50000 participates: quorum (10% = 5000) missed
	p, err := f.manager.CreateProposal("proposer", "t", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)
	f.now = p.VotingStart
	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-abstain", ChoiceAbstain))
	f.now = p.VotingEnd.Add(time.Second)

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusDefeated, got.Status)
	_, err = f.manager.Queue(p.ProposalID)
	assert.Equal(t, errs.QuorumNotReached, errs.KindOf(err))

	// quorum met but against wins
	f.now = time.Now()
	p2, err := f.manager.CreateProposal("proposer", "t2", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)
	f.now = p2.VotingStart
	require.NoError(t, f.manager.CastVote(p2.ProposalID, "voter-big", ChoiceAgainst))
	f.now = p2.VotingEnd.Add(time.Second)
	got, err = f.manager.Get(p2.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusDefeated, got.Status)
	_, err = f.manager.Queue(p2.ProposalID)
	assert.Equal(t, errs.PreconditionFailed, errs.KindOf(err))
}

// the scenario: 6000 for, 2000 against, 1000 abstain of 50000 supply,
// then a 2 day timelock and execution
func TestGovernanceHappyPath(t *testing.T) {
	f := newGovFixture(t)
	p := f.createAndPass(t)

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	tx, err := f.manager.Queue(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, fabric.TimelockDelay, tx.ExecutableAt.Sub(tx.QueuedAt))
	assert.Equal(t, fabric.GracePeriod, tx.ExpiresAt.Sub(tx.ExecutableAt))

	// before the delay elapses
	err = f.manager.Execute(tx.TxID)
	assert.Equal(t, errs.TimelockNotElapsed, errs.KindOf(err))

	f.now = tx.ExecutableAt
	require.NoError(t, f.manager.Execute(tx.TxID))

	got, err = f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.False(t, got.PartialFailure)

	v, ok := f.params.Get("gossip_interval_seconds")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	// the queue entry is gone
	assert.Empty(t, f.manager.Queued())
}

// guardian pause blocks execution with a retryable error; after unpause
// the next queue tick executes
func TestGuardianPause(t *testing.T) {
	f := newGovFixture(t)
	p := f.createAndPass(t)
	tx, err := f.manager.Queue(p.ProposalID)
	require.NoError(t, err)

	assert.Equal(t, errs.AuthenticationFailed, errs.KindOf(f.manager.Pause("rando")))
	require.NoError(t, f.manager.Pause("guardian-1"))

	f.now = tx.ExecutableAt
	err = f.manager.Execute(tx.TxID)
	assert.Equal(t, errs.TimelockPaused, errs.KindOf(err))

	require.NoError(t, f.manager.Unpause("guardian-2"))
	f.manager.ProcessQueue()

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
}

func TestGuardianCancelThreshold(t *testing.T) {
	f := newGovFixture(t)
	p := f.createAndPass(t)
	tx, err := f.manager.Queue(p.ProposalID)
	require.NoError(t, err)

	assert.Equal(t, errs.AuthenticationFailed, errs.KindOf(f.manager.CancelQueued(tx.TxID, "rando", "")))

	// one guardian is not enough
	require.NoError(t, f.manager.CancelQueued(tx.TxID, "guardian-1", "compromised"))
	assert.Len(t, f.manager.Queued(), 1)
	// the same guardian cannot vote twice
	assert.Equal(t, errs.PreconditionFailed, errs.KindOf(f.manager.CancelQueued(tx.TxID, "guardian-1", "")))

	require.NoError(t, f.manager.CancelQueued(tx.TxID, "guardian-2", "compromised"))
	assert.Empty(t, f.manager.Queued())

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestExpiryWithoutDispatch(t *testing.T) {
	f := newGovFixture(t)
	p := f.createAndPass(t)
	tx, err := f.manager.Queue(p.ProposalID)
	require.NoError(t, err)

	f.now = tx.ExpiresAt.Add(time.Second)
	err = f.manager.Execute(tx.TxID)
	assert.Equal(t, errs.Expired, errs.KindOf(err))

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	// the action never ran
	v, _ := f.params.Get("gossip_interval_seconds")
	assert.Equal(t, 30, v)
}

func TestProposerCancel(t *testing.T) {
	f := newGovFixture(t)
	p, err := f.manager.CreateProposal("proposer", "t", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)

	assert.Equal(t, errs.PreconditionFailed, errs.KindOf(f.manager.Cancel(p.ProposalID, "voter-big")))
	require.NoError(t, f.manager.Cancel(p.ProposalID, "proposer"))

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// cannot cancel a second proposal once voting started
	f.now = time.Now()
	p2, err := f.manager.CreateProposal("proposer", "t2", "", TypeParameterChange, paramChangeActions(), false)
	require.NoError(t, err)
	f.now = p2.VotingStart
	assert.Equal(t, errs.PreconditionFailed, errs.KindOf(f.manager.Cancel(p2.ProposalID, "proposer")))
}

type flakyHandler struct {
	failExecute    bool
	failCompensate bool
	executed       []string
	compensated    []string
}

func (h *flakyHandler) Execute(a Action) error {
	if h.failExecute {
		return errs.New(errs.Internal, "boom")
	}
	h.executed = append(h.executed, a.Method)
	return nil
}

func (h *flakyHandler) Compensate(a Action) error {
	if h.failCompensate {
		return errs.New(errs.Internal, "rollback boom")
	}
	h.compensated = append(h.compensated, a.Method)
	return nil
}

func queuePastTimelock(t *testing.T, f *govFixture, actions []Action) (*QueuedTx, *Proposal) {
	t.Helper()
	p, err := f.manager.CreateProposal("proposer", "multi", "", TypeTokenAllocation, actions, false)
	require.NoError(t, err)
	f.now = p.VotingStart.Add(time.Minute)
	require.NoError(t, f.manager.CastVote(p.ProposalID, "voter-big", ChoiceFor))
	f.now = p.VotingEnd.Add(time.Second)
	tx, err := f.manager.Queue(p.ProposalID)
	require.NoError(t, err)
	f.now = tx.ExecutableAt
	return tx, p
}

func TestCompensationReverseOrder(t *testing.T) {
	f := newGovFixture(t)
	good := &flakyHandler{}
	bad := &flakyHandler{failExecute: true}
	f.manager.executor.Register("good", good)
	f.manager.executor.Register("bad", bad)

	tx, p := queuePastTimelock(t, f, []Action{
		{TargetNamespace: "good", Method: "a"},
		{TargetNamespace: "good", Method: "b"},
		{TargetNamespace: "bad", Method: "c"},
	})

	err := f.manager.Execute(tx.TxID)
	require.Error(t, err)

	// a and b executed, then compensated in reverse order
	assert.Equal(t, []string{"a", "b"}, good.executed)
	assert.Equal(t, []string{"b", "a"}, good.compensated)

	// a clean rollback leaves the entry queued for a retry
	assert.Len(t, f.manager.Queued(), 1)
	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.False(t, got.PartialFailure)
}

func TestPartialFailureMarker(t *testing.T) {
	f := newGovFixture(t)
	stuck := &flakyHandler{failCompensate: true}
	bad := &flakyHandler{failExecute: true}
	f.manager.executor.Register("stuck", stuck)
	f.manager.executor.Register("bad", bad)

	tx, p := queuePastTimelock(t, f, []Action{
		{TargetNamespace: "stuck", Method: "a"},
		{TargetNamespace: "bad", Method: "b"},
	})

	err := f.manager.Execute(tx.TxID)
	require.Error(t, err)

	got, err := f.manager.Get(p.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.True(t, got.PartialFailure)
	assert.Empty(t, f.manager.Queued())
}

func TestLedgerHandlerRoundTrip(t *testing.T) {
	f := newGovFixture(t)
	h := NewLedgerHandler(f.book)

	mint := Action{TargetNamespace: "ledger", Method: "mint",
		Params: map[string]any{"account": "grants", "amount": float64(500)}}
	require.NoError(t, h.Execute(mint))
	assert.Equal(t, uint64(500), f.book.Balance("grants"))
	require.NoError(t, h.Compensate(mint))
	assert.Zero(t, f.book.Balance("grants"))

	transfer := Action{TargetNamespace: "ledger", Method: "transfer",
		Params: map[string]any{"from": "treasury", "to": "grants", "amount": float64(100)}}
	require.NoError(t, h.Execute(transfer))
	assert.Equal(t, uint64(100), f.book.Balance("grants"))
	require.NoError(t, h.Compensate(transfer))
	assert.Zero(t, f.book.Balance("grants"))

	err := h.Execute(Action{TargetNamespace: "ledger", Method: "mint",
		Params: map[string]any{"account": "grants", "amount": -5}})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestParamsHandlerCompensateRestores(t *testing.T) {
	h := NewParamsHandler(map[string]any{"a": 1})

	set := Action{TargetNamespace: "params", Method: "set",
		Params: map[string]any{"key": "a", "value": 2}}
	require.NoError(t, h.Execute(set))
	v, _ := h.Get("a")
	assert.Equal(t, 2, v)
	require.NoError(t, h.Compensate(set))
	v, _ = h.Get("a")
	assert.Equal(t, 1, v)

	// compensating a set of a previously absent key deletes it
	newKey := Action{TargetNamespace: "params", Method: "set",
		Params: map[string]any{"key": "b", "value": "x"}}
	require.NoError(t, h.Execute(newKey))
	require.NoError(t, h.Compensate(newKey))
	_, ok := h.Get("b")
	assert.False(t, ok)
}
