// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gov is the governance pipeline: proposals are discussed, voted
// on with token-weighted power, queued behind a timelock and executed
// action by action with compensation on failure.
package gov

import (
	"time"

	"github.com/pborman/uuid"

	"github.com/a2afabric/fabric/fabric"
)

// ProposalStatus tracks a proposal through the pipeline. PENDING, ACTIVE,
// SUCCEEDED and DEFEATED are derived from wall time and tallies; the rest
// are set by explicit operations.
type ProposalStatus string

const (
	StatusPending   ProposalStatus = "PENDING"
	StatusActive    ProposalStatus = "ACTIVE"
	StatusSucceeded ProposalStatus = "SUCCEEDED"
	StatusDefeated  ProposalStatus = "DEFEATED"
	StatusCancelled ProposalStatus = "CANCELLED"
	StatusQueued    ProposalStatus = "QUEUED"
	StatusExecuted  ProposalStatus = "EXECUTED"
	StatusExpired   ProposalStatus = "EXPIRED"
)

// Proposal types. An EMERGENCY proposal skips discussion and votes in a
// shortened window regardless of the emergency flag.
const (
	TypeParameterChange = "PARAMETER_CHANGE"
	TypeUpgrade         = "UPGRADE"
	TypeTokenAllocation = "TOKEN_ALLOCATION"
	TypeEmergency       = "EMERGENCY"
)

// Choice is a vote option.
type Choice string

const (
	ChoiceFor     Choice = "FOR"
	ChoiceAgainst Choice = "AGAINST"
	ChoiceAbstain Choice = "ABSTAIN"
)

// Action is one operation a proposal executes, dispatched by namespace.
type Action struct {
	TargetNamespace string         `json:"target_namespace"`
	Method          string         `json:"method"`
	Params          map[string]any `json:"params,omitempty"`
}

// Vote is one cast ballot.
type Vote struct {
	Voter  fabric.AgentID `json:"voter"`
	Choice Choice         `json:"choice"`
	Power  uint64         `json:"power"`
	CastAt time.Time      `json:"cast_at"`
}

// Tally is the running vote count of a proposal.
type Tally struct {
	For     uint64 `json:"for"`
	Against uint64 `json:"against"`
	Abstain uint64 `json:"abstain"`
}

// Total returns the participating voting power.
func (t Tally) Total() uint64 { return t.For + t.Against + t.Abstain }

// Proposal is one governance proposal and its votes.
type Proposal struct {
	ProposalID    fabric.ProposalID       `json:"proposal_id"`
	Proposer      fabric.AgentID          `json:"proposer"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description,omitempty"`
	Type          string                  `json:"type"`
	Emergency     bool                    `json:"emergency"`
	Actions       []Action                `json:"actions"`
	Status        ProposalStatus          `json:"status"`
	CreatedAt     time.Time               `json:"created_at"`
	DiscussionEnd time.Time               `json:"discussion_end"`
	VotingStart   time.Time               `json:"voting_start"`
	VotingEnd     time.Time               `json:"voting_end"`
	Votes         map[fabric.AgentID]Vote `json:"votes"`
	Tally         Tally                   `json:"tally"`
	// PartialFailure marks an EXECUTED proposal whose compensation pass
	// failed; operators must reconcile by hand.
	PartialFailure bool `json:"partial_failure,omitempty"`
}

func newProposal(proposer fabric.AgentID, title, description, pType string, actions []Action) *Proposal {
	return &Proposal{
		ProposalID:  fabric.ProposalID(uuid.New()),
		Proposer:    proposer,
		Title:       title,
		Description: description,
		Type:        pType,
		Actions:     actions,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		Votes:       make(map[fabric.AgentID]Vote),
	}
}

// Copy returns a deep copy.
func (p *Proposal) Copy() *Proposal {
	out := *p
	out.Actions = append([]Action(nil), p.Actions...)
	out.Votes = make(map[fabric.AgentID]Vote, len(p.Votes))
	for k, v := range p.Votes {
		out.Votes[k] = v
	}
	return &out
}

// QueuedTx is one timelock entry for a queued proposal.
type QueuedTx struct {
	TxID         string            `json:"tx_id"`
	ProposalID   fabric.ProposalID `json:"proposal_id"`
	QueuedAt     time.Time         `json:"queued_at"`
	ExecutableAt time.Time         `json:"executable_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	CancelVotes  []fabric.AgentID  `json:"cancel_votes,omitempty"`
}
