// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fabric

import (
	"fmt"
	"strings"
)

// AgentID is the stable identifier of an agent on the fabric.
type AgentID string

// NodeID identifies a registry node.
type NodeID string

// TaskID identifies a delegated task.
type TaskID string

// EscrowID identifies an escrow account.
type EscrowID string

// ProposalID identifies a governance proposal.
type ProposalID string

const maxIDLen = 128

// Validate checks id for emptiness, length and forbidden characters.
func (id AgentID) Validate() error {
	return validateID(string(id), "agent id")
}

func (id NodeID) Validate() error {
	return validateID(string(id), "node id")
}

func (id TaskID) Validate() error {
	return validateID(string(id), "task id")
}

func (id AgentID) String() string    { return string(id) }
func (id NodeID) String() string     { return string(id) }
func (id TaskID) String() string     { return string(id) }
func (id EscrowID) String() string   { return string(id) }
func (id ProposalID) String() string { return string(id) }

// IsZero returns whether the id is empty.
func (id AgentID) IsZero() bool { return id == "" }

func validateID(s, what string) error {
	if s == "" {
		return fmt.Errorf("%s: empty", what)
	}
	if len(s) > maxIDLen {
		return fmt.Errorf("%s: longer than %d chars", what, maxIDLen)
	}
	if strings.ContainsAny(s, " \t\r\n\x00") {
		return fmt.Errorf("%s: contains whitespace or NUL", what)
	}
	return nil
}
