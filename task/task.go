// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package task defines delegated work: the delegation record exchanged
// between agents and the tracker that enforces its state machine.
package task

import (
	"encoding/json"
	"time"

	"github.com/pborman/uuid"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/message"
)

// Priority of a delegation.
type Priority string

const (
	PriorityLow       Priority = "LOW"
	PriorityNormal    Priority = "NORMAL"
	PriorityHigh      Priority = "HIGH"
	PriorityUrgent    Priority = "URGENT"
	PriorityEmergency Priority = "EMERGENCY"
)

// Status of a delegation.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimeout    Status = "TIMEOUT"
	StatusRejected   Status = "REJECTED"
)

// Terminal reports whether no further transition is permitted.
// COMPLETED still accepts a verification outcome but no status change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout, StatusRejected:
		return true
	}
	return false
}

// Active reports whether the delegation has been picked up and is being
// worked on.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusInProgress
}

// Deliverable is one expected output of a delegation.
type Deliverable struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Path        string   `json:"path,omitempty"`
	Criteria    []string `json:"criteria,omitempty"`
}

// Delegation is the unit of delegated work.
type Delegation struct {
	TaskID               fabric.TaskID   `json:"task_id"`
	ParentTaskID         fabric.TaskID   `json:"parent_task_id,omitempty"`
	DelegatorID          fabric.AgentID  `json:"delegator_id"`
	DelegateeID          fabric.AgentID  `json:"delegatee_id"`
	TaskType             string          `json:"task_type"`
	Title                string          `json:"title"`
	Description          string          `json:"description,omitempty"`
	Requirements         []string        `json:"requirements,omitempty"`
	Deliverables         []Deliverable   `json:"deliverables,omitempty"`
	Priority             Priority        `json:"priority"`
	Status               Status          `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	Deadline             time.Time       `json:"deadline,omitzero"`
	RewardAmount         uint64          `json:"reward_amount"`
	RewardToken          string          `json:"reward_token,omitempty"`
	EscrowID             fabric.EscrowID `json:"escrow_id,omitempty"`
	Context              map[string]any  `json:"context,omitempty"`
	Dependencies         []fabric.TaskID `json:"dependencies,omitempty"`
	RequiredCapabilities []string        `json:"required_capabilities,omitempty"`
}

// NewDelegation creates a PENDING delegation with a fresh task id.
func NewDelegation(delegator, delegatee fabric.AgentID, taskType, title string) *Delegation {
	return &Delegation{
		TaskID:      fabric.TaskID(uuid.New()),
		DelegatorID: delegator,
		DelegateeID: delegatee,
		TaskType:    taskType,
		Title:       title,
		Priority:    PriorityNormal,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

// Validate checks the delegation's required fields.
func (d *Delegation) Validate() error {
	if err := d.TaskID.Validate(); err != nil {
		return errs.WithKind(err, errs.InvalidArgument)
	}
	if err := d.DelegatorID.Validate(); err != nil {
		return errs.WithKind(err, errs.InvalidArgument)
	}
	if err := d.DelegateeID.Validate(); err != nil {
		return errs.WithKind(err, errs.InvalidArgument)
	}
	if d.DelegatorID == d.DelegateeID {
		return errs.New(errs.InvalidArgument, "delegator equals delegatee")
	}
	if d.TaskType == "" || d.Title == "" {
		return errs.New(errs.InvalidArgument, "task_type and title required")
	}
	return nil
}

// Copy returns a deep copy.
func (d *Delegation) Copy() *Delegation {
	out := *d
	out.Requirements = append([]string(nil), d.Requirements...)
	out.Deliverables = append([]Deliverable(nil), d.Deliverables...)
	out.Dependencies = append([]fabric.TaskID(nil), d.Dependencies...)
	out.RequiredCapabilities = append([]string(nil), d.RequiredCapabilities...)
	if d.Context != nil {
		out.Context = make(map[string]any, len(d.Context))
		for k, v := range d.Context {
			out.Context[k] = v
		}
	}
	return &out
}

// WrapMessage wraps the delegation in a task_delegate envelope addressed to
// the delegatee.
func (d *Delegation) WrapMessage() (*message.SecureMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	msg, err := message.New(message.TypeTaskDelegate, d.DelegatorID, map[string]any{
		"delegation": payload,
	})
	if err != nil {
		return nil, err
	}
	msg.RecipientID = d.DelegateeID
	return msg, nil
}

// UnwrapMessageBytes decodes a wire message and extracts its delegation.
func UnwrapMessageBytes(data []byte) (*Delegation, error) {
	msg, err := message.Decode(data)
	if err != nil {
		return nil, err
	}
	return UnwrapMessage(msg)
}

// UnwrapMessage extracts a delegation from a task_delegate envelope.
func UnwrapMessage(msg *message.SecureMessage) (*Delegation, error) {
	if msg.MsgType != message.TypeTaskDelegate {
		return nil, errs.Errorf(errs.InvalidArgument, "not a delegation message: %s", msg.MsgType)
	}
	raw, err := json.Marshal(msg.Payload["delegation"])
	if err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	var d Delegation
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, errs.Errorf(errs.InvalidArgument, "malformed delegation: %v", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
