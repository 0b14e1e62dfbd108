// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry

import (
	"time"

	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/vclock"
)

// Status of a registry entry.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusTombstone Status = "TOMBSTONE"
)

// Entry is one replicated directory record. Vector clocks order updates
// causally; the HLC breaks concurrent ties.
type Entry struct {
	EntityID      fabric.AgentID `json:"entity_id"`
	DisplayName   string         `json:"display_name"`
	Endpoint      string         `json:"endpoint"`
	Capabilities  []string       `json:"capabilities"`
	PublicKey     []byte         `json:"public_key,omitempty"`
	RegisteredAt  time.Time      `json:"registered_at"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	Version       uint64         `json:"version"`
	OriginNodeID  fabric.NodeID  `json:"origin_node_id"`
	VClock        vclock.VC      `json:"vector_clock"`
	HLC           vclock.HLC     `json:"hlc"`
	Status        Status         `json:"status"`
}

// Copy returns a deep copy, so callers can hand entries out of the lock.
func (e *Entry) Copy() *Entry {
	out := *e
	out.Capabilities = append([]string(nil), e.Capabilities...)
	out.PublicKey = append([]byte(nil), e.PublicKey...)
	out.VClock = e.VClock.Copy()
	return &out
}

// HasCapability reports whether the entry exposes cap.
func (e *Entry) HasCapability(cap string) bool {
	for _, c := range e.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Identity projects the entry onto an agent identity, used to resolve
// handshake peers.
func (e *Entry) Identity() *fabric.Identity {
	return &fabric.Identity{
		AgentID:      e.EntityID,
		DisplayName:  e.DisplayName,
		PublicKey:    append([]byte(nil), e.PublicKey...),
		Endpoint:     e.Endpoint,
		Capabilities: append([]string(nil), e.Capabilities...),
	}
}
