package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/nimbolus/vault-mgmt/pkg/metrics"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

// pollInterval throttles the status poll loops. The engine exports no watch
// for these endpoints, so progress is observed by re-querying.
const pollInterval = 100 * time.Millisecond

// SealStatus is a member's answer to the seal-status query. The
// high-availability fields are only present once the member participates in a
// cluster.
type SealStatus struct {
	Type         string `json:"type"`
	Initialized  bool   `json:"initialized"`
	Sealed       bool   `json:"sealed"`
	T            int    `json:"t"`
	N            int    `json:"n"`
	Progress     int    `json:"progress"`
	Nonce        string `json:"nonce"`
	Version      string `json:"version"`
	BuildDate    string `json:"build_date"`
	Migration    bool   `json:"migration"`
	RecoverySeal bool   `json:"recovery_seal"`
	StorageType  string `json:"storage_type"`

	HAEnabled            *bool  `json:"ha_enabled,omitempty"`
	ClusterName          string `json:"cluster_name,omitempty"`
	ClusterID            string `json:"cluster_id,omitempty"`
	ActiveTime           string `json:"active_time,omitempty"`
	LeaderAddress        string `json:"leader_address,omitempty"`
	LeaderClusterAddress string `json:"leader_cluster_address,omitempty"`
	RaftCommittedIndex   uint64 `json:"raft_committed_index,omitempty"`
	RaftAppliedIndex     uint64 `json:"raft_applied_index,omitempty"`
}

// SealCondition is a predicate over a seal-status snapshot.
type SealCondition func(status *SealStatus) bool

// SealStatusInitialized holds once the member reports itself initialized.
func SealStatusInitialized(status *SealStatus) bool {
	return status != nil && status.Initialized
}

// SealStatusSealed holds while the member reports itself sealed.
func SealStatusSealed(status *SealStatus) bool {
	return status != nil && status.Sealed
}

// NotSeal inverts a seal condition.
func NotSeal(cond SealCondition) SealCondition {
	return func(status *SealStatus) bool {
		return !cond(status)
	}
}

// SealStatus queries the member's seal status.
func (c *Client) SealStatus(ctx context.Context) (*SealStatus, error) {
	req, err := c.newRequest(http.MethodGet, sealStatusPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("getting seal status: %w", err)
	}
	metrics.SealStatusPollsTotal.Inc()

	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("getting seal status: %s", resp.Body)
	}

	var status SealStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return nil, fmt.Errorf("decoding seal status: %w: %s", err, resp.Body)
	}
	return &status, nil
}

// AwaitSealStatus polls the seal status until cond holds or ctx is cancelled.
func (c *Client) AwaitSealStatus(ctx context.Context, cond SealCondition) (*SealStatus, error) {
	var out *SealStatus
	err := wait.PollUntilContextCancel(ctx, pollInterval, true, func(ctx context.Context) (bool, error) {
		status, err := c.SealStatus(ctx)
		if err != nil {
			return false, err
		}
		if cond(status) {
			out = status
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RaftConfiguration is the consensus group's current member list.
type RaftConfiguration struct {
	RequestID     string                `json:"request_id"`
	LeaseID       string                `json:"lease_id"`
	Renewable     bool                  `json:"renewable"`
	LeaseDuration int                   `json:"lease_duration"`
	Data          RaftConfigurationData `json:"data"`
}

// RaftConfigurationData wraps the config object inside the response envelope.
type RaftConfigurationData struct {
	Config RaftConfig `json:"config"`
}

// RaftConfig lists the consensus servers and the config index.
type RaftConfig struct {
	Servers []RaftServer `json:"servers"`
	Index   uint64       `json:"index"`
}

// RaftServer describes one consensus group member.
type RaftServer struct {
	NodeID          string `json:"node_id"`
	Address         string `json:"address"`
	Leader          bool   `json:"leader"`
	ProtocolVersion string `json:"protocol_version"`
	Voter           bool   `json:"voter"`
}

// RaftCondition is a predicate over a raft configuration snapshot.
type RaftCondition func(config *RaftConfiguration) bool

// AnyLeader holds once some consensus server reports itself leader.
func AnyLeader(config *RaftConfiguration) bool {
	if config == nil {
		return false
	}
	for _, server := range config.Data.Config.Servers {
		if server.Leader {
			return true
		}
	}
	return false
}

// AllVoters holds once every consensus server is a voter.
func AllVoters(config *RaftConfiguration) bool {
	if config == nil {
		return false
	}
	for _, server := range config.Data.Config.Servers {
		if !server.Voter {
			return false
		}
	}
	return true
}

// RaftConfiguration queries the member's view of the consensus group.
func (c *Client) RaftConfiguration(ctx context.Context, token secret.Secret) (*RaftConfiguration, error) {
	req, err := c.newAuthenticatedRequest(http.MethodGet, raftConfigurationPath, nil, token)
	if err != nil {
		return nil, err
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("getting raft configuration: %w", err)
	}

	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("getting raft configuration: %s", resp.Body)
	}

	var config RaftConfiguration
	if err := json.Unmarshal(resp.Body, &config); err != nil {
		return nil, fmt.Errorf("decoding raft configuration: %w: %s", err, resp.Body)
	}
	return &config, nil
}

// AwaitRaftConfiguration polls the raft configuration until cond holds or ctx
// is cancelled.
func (c *Client) AwaitRaftConfiguration(ctx context.Context, token secret.Secret, cond RaftCondition) (*RaftConfiguration, error) {
	var out *RaftConfiguration
	err := wait.PollUntilContextCancel(ctx, pollInterval, true, func(ctx context.Context) (bool, error) {
		config, err := c.RaftConfiguration(ctx, token)
		if err != nil {
			return false, err
		}
		if cond(config) {
			out = config
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
