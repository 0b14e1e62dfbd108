// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"bytes"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/gov"
	"github.com/a2afabric/fabric/registry"
	"github.com/a2afabric/fabric/session"
)

// SeedPeer is a statically configured bootstrap peer.
type SeedPeer struct {
	AgentID  string `yaml:"agent_id"`
	Endpoint string `yaml:"endpoint"`
}

// Config holds every recognized node option. All values are read once at
// startup; durations are given in seconds to keep the yaml flat.
type Config struct {
	NodeID       string     `yaml:"node_id"`
	AgentID      string     `yaml:"agent_id"`
	DisplayName  string     `yaml:"display_name"`
	Capabilities []string   `yaml:"capabilities"`
	DataDir      string     `yaml:"data_dir"`
	KeyFile      string     `yaml:"key_file"`
	ListenAddr   string     `yaml:"listen_addr"`
	APIAddr      string     `yaml:"api_addr"`
	APIOrigins   string     `yaml:"api_allowed_origins"`
	NTPServer    string     `yaml:"ntp_server"`
	SeedPeers    []SeedPeer `yaml:"seed_peers"`

	SessionTTLSeconds         int `yaml:"session_ttl_seconds"`
	HandshakeTimeoutSeconds   int `yaml:"handshake_timeout_seconds"`
	ReplayWindowSeconds       int `yaml:"replay_window_seconds"`
	TimestampToleranceSeconds int `yaml:"timestamp_tolerance_seconds"`

	GossipIntervalSeconds  int `yaml:"gossip_interval_seconds"`
	MaxGossipPeers         int `yaml:"max_gossip_peers"`
	LivenessTimeoutSeconds int `yaml:"liveness_timeout_seconds"`
	TombstoneTTLSeconds    int `yaml:"tombstone_ttl_seconds"`

	MinTokensToPropose          uint64   `yaml:"min_tokens_to_propose"`
	MinTokensToVote             uint64   `yaml:"min_tokens_to_vote"`
	DiscussionPeriodSeconds     int      `yaml:"discussion_period_seconds"`
	VotingPeriodSeconds         int      `yaml:"voting_period_seconds"`
	TimelockDelaySeconds        int      `yaml:"timelock_delay_seconds"`
	EmergencyDelaySeconds       int      `yaml:"emergency_delay_seconds"`
	GracePeriodSeconds          int      `yaml:"grace_period_seconds"`
	QuorumPercentage            uint64   `yaml:"quorum_percentage"`
	ApprovalThresholdPercentage uint64   `yaml:"approval_threshold_percentage"`
	MaxVotingPower              uint64   `yaml:"max_voting_power"`
	GuardianAddresses           []string `yaml:"guardian_addresses"`
	GuardianThreshold           int      `yaml:"guardian_threshold"`

	EscrowExpiryPollSeconds int     `yaml:"escrow_expiry_poll_seconds"`
	RateLimitSteady         float64 `yaml:"rate_limit_steady"`
	RateLimitBurst          int64   `yaml:"rate_limit_burst"`
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		DisplayName: "fabric-node",
		ListenAddr:  ":7671",
		APIAddr:     "localhost:8669",
		NTPServer:   "pool.ntp.org",

		SessionTTLSeconds:         int(fabric.SessionTTL / time.Second),
		HandshakeTimeoutSeconds:   int(fabric.HandshakeTimeout / time.Second),
		ReplayWindowSeconds:       int(fabric.ReplayWindow / time.Second),
		TimestampToleranceSeconds: int(fabric.TimestampTolerance / time.Second),

		GossipIntervalSeconds:  int(fabric.GossipInterval / time.Second),
		MaxGossipPeers:         fabric.MaxGossipPeers,
		LivenessTimeoutSeconds: int(fabric.LivenessTimeout / time.Second),
		TombstoneTTLSeconds:    int(fabric.TombstoneTTL / time.Second),

		MinTokensToPropose:          fabric.MinTokensToPropose,
		MinTokensToVote:             fabric.MinTokensToVote,
		DiscussionPeriodSeconds:     int(fabric.DiscussionPeriod / time.Second),
		VotingPeriodSeconds:         int(fabric.VotingPeriod / time.Second),
		TimelockDelaySeconds:        int(fabric.TimelockDelay / time.Second),
		EmergencyDelaySeconds:       int(fabric.EmergencyDelay / time.Second),
		GracePeriodSeconds:          int(fabric.GracePeriod / time.Second),
		QuorumPercentage:            fabric.QuorumPercentage,
		ApprovalThresholdPercentage: fabric.ApprovalThreshold,
		MaxVotingPower:              fabric.MaxVotingPower,
		GuardianThreshold:           fabric.GuardianThreshold,

		EscrowExpiryPollSeconds: int(fabric.EscrowExpiryPoll / time.Second),
		RateLimitSteady:         fabric.RateLimitSteady,
		RateLimitBurst:          fabric.RateLimitBurst,
	}
}

// LoadConfig reads a yaml config file over the defaults. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate checks required identity fields and option sanity.
func (c *Config) Validate() error {
	if err := fabric.NodeID(c.NodeID).Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if err := fabric.AgentID(c.AgentID).Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.MaxGossipPeers <= 0 {
		return errors.New("config: max_gossip_peers must be positive")
	}
	if c.QuorumPercentage > 100 || c.ApprovalThresholdPercentage > 100 {
		return errors.New("config: percentages must be at most 100")
	}
	if c.GuardianThreshold <= 0 {
		return errors.New("config: guardian_threshold must be positive")
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// SessionOptions projects the session layer options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		TTL:                seconds(c.SessionTTLSeconds),
		ReplayWindow:       seconds(c.ReplayWindowSeconds),
		TimestampTolerance: seconds(c.TimestampToleranceSeconds),
	}
}

// RegistryOptions projects the registry options.
func (c *Config) RegistryOptions() registry.Options {
	return registry.Options{
		LivenessTimeout: seconds(c.LivenessTimeoutSeconds),
		TombstoneTTL:    seconds(c.TombstoneTTLSeconds),
		ClockSkewBound:  seconds(c.TimestampToleranceSeconds),
	}
}

// GovOptions projects the governance options.
func (c *Config) GovOptions() gov.Options {
	guardians := make([]fabric.AgentID, 0, len(c.GuardianAddresses))
	for _, g := range c.GuardianAddresses {
		guardians = append(guardians, fabric.AgentID(g))
	}
	return gov.Options{
		MinTokensToPropose: c.MinTokensToPropose,
		MinTokensToVote:    c.MinTokensToVote,
		DiscussionPeriod:   seconds(c.DiscussionPeriodSeconds),
		VotingPeriod:       seconds(c.VotingPeriodSeconds),
		TimelockDelay:      seconds(c.TimelockDelaySeconds),
		EmergencyDelay:     seconds(c.EmergencyDelaySeconds),
		GracePeriod:        seconds(c.GracePeriodSeconds),
		QuorumPercentage:   c.QuorumPercentage,
		ApprovalThreshold:  c.ApprovalThresholdPercentage,
		MaxVotingPower:     c.MaxVotingPower,
		Guardians:          guardians,
		GuardianThreshold:  c.GuardianThreshold,
	}
}
