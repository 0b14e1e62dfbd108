// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package escrow locks task rewards in a holding account until completion
// is verified, and arbitrates the money when it is not.
package escrow

import (
	"time"

	"github.com/pborman/uuid"

	"github.com/a2afabric/fabric/fabric"
)

// Status of an escrow account.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusLocked    Status = "LOCKED"
	StatusCompleted Status = "COMPLETED"
	StatusReleased  Status = "RELEASED"
	StatusCancelled Status = "CANCELLED"
	StatusDisputed  Status = "DISPUTED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether no transition out of s is permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusReleased, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Resolution of a disputed escrow.
type Resolution string

const (
	ResolutionPending      Resolution = "PENDING"
	ResolutionClientWins   Resolution = "CLIENT_WINS"
	ResolutionProviderWins Resolution = "PROVIDER_WINS"
	ResolutionSplit        Resolution = "SPLIT"
)

// Escrow is one locked-reward account.
type Escrow struct {
	EscrowID         fabric.EscrowID `json:"escrow_id"`
	TaskID           fabric.TaskID   `json:"task_id"`
	ClientID         fabric.AgentID  `json:"client_id"`
	ProviderID       fabric.AgentID  `json:"provider_id"`
	Amount           uint64          `json:"amount"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	Deadline         time.Time       `json:"deadline"`
	ReleasedAt       time.Time       `json:"released_at,omitzero"`
	DisputeReason    string          `json:"dispute_reason,omitempty"`
	Resolution       Resolution      `json:"resolution"`
	ResolutionAmount uint64          `json:"resolution_amount,omitempty"`
}

// Account returns the ledger account holding this escrow's funds.
func (e *Escrow) Account() string {
	return "escrow:" + string(e.EscrowID)
}

// Copy returns a shallow copy (all fields are values).
func (e *Escrow) Copy() *Escrow {
	out := *e
	return &out
}

func newEscrow(taskID fabric.TaskID, client, provider fabric.AgentID, amount uint64, deadline time.Time) *Escrow {
	return &Escrow{
		EscrowID:   fabric.EscrowID(uuid.New()),
		TaskID:     taskID,
		ClientID:   client,
		ProviderID: provider,
		Amount:     amount,
		Status:     StatusCreated,
		CreatedAt:  time.Now(),
		Deadline:   deadline,
		Resolution: ResolutionPending,
	}
}
