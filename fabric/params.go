// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fabric

import "time"

// ProtocolVersion is carried by every secure message.
const ProtocolVersion = "1.1"

// SessionKeyInfo is the HKDF info label for session key derivation.
const SessionKeyInfo = "a2a-v1-session-key"

// Protocol and runtime tunables. All durations are wall-clock.
const (
	SessionTTL         = time.Hour
	HandshakeTimeout   = 60 * time.Second
	ReplayWindow       = 5 * time.Minute
	TimestampTolerance = 30 * time.Second
	SequenceWindow     = 64

	GossipInterval  = 30 * time.Second
	MaxGossipPeers  = 3
	LivenessTimeout = 120 * time.Second
	TombstoneTTL    = 24 * time.Hour

	MinTokensToPropose = 1000
	MinTokensToVote    = 100
	DiscussionPeriod   = 48 * time.Hour
	VotingPeriod       = 72 * time.Hour
	TimelockDelay      = 48 * time.Hour
	EmergencyDelay     = 4 * time.Hour
	GracePeriod        = 14 * 24 * time.Hour
	QuorumPercentage   = 10
	ApprovalThreshold  = 51
	MaxVotingPower     = 1_000_000
	GuardianThreshold  = 2

	EscrowExpiryPoll = 60 * time.Second
	RateLimitSteady  = 5
	RateLimitBurst   = 10

	// ChunkMTU is the largest payload carried by a single frame.
	ChunkMTU = 60 * 1024
)
