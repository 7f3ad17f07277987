package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

// InitRequest parameterizes cluster bootstrap.
type InitRequest struct {
	SecretShares      int      `json:"secret_shares"`
	SecretThreshold   int      `json:"secret_threshold"`
	StoredShares      int      `json:"stored_shares"`
	PGPKeys           []string `json:"pgp_keys"`
	RecoveryShares    int      `json:"recovery_shares"`
	RecoveryThreshold int      `json:"recovery_threshold"`
	RecoveryPGPKeys   []string `json:"recovery_pgp_keys"`
	RootTokenPGPKey   string   `json:"root_token_pgp_key"`
}

// DefaultInitRequest returns the bootstrap parameters used for a fresh
// cluster: three shares, threshold two, no recovery keys, no PGP wrapping.
func DefaultInitRequest() InitRequest {
	return InitRequest{
		SecretShares:    3,
		SecretThreshold: 2,
	}
}

// InitResult carries the key material produced at bootstrap. Its secrets are
// consumed by every subsequent unseal and never appear in diagnostics.
type InitResult struct {
	Keys       []secret.Secret `json:"keys"`
	KeysBase64 []secret.Secret `json:"keys_base64"`
	RootToken  secret.Secret   `json:"root_token"`
}

// Init bootstraps an uninitialized member.
func (c *Client) Init(ctx context.Context, initReq InitRequest) (*InitResult, error) {
	body, err := json.Marshal(initReq)
	if err != nil {
		return nil, fmt.Errorf("encoding init request: %w", err)
	}

	req, err := c.newRequest(http.MethodPut, initPath, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}

	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("initializing: %s", resp.Body)
	}

	var result InitResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("decoding init result: %w", err)
	}
	return &result, nil
}

type raftJoinRequest struct {
	LeaderAPIAddr string `json:"leader_api_addr"`
}

// RaftJoin joins the member to the consensus group led from leaderAPIAddr.
func (c *Client) RaftJoin(ctx context.Context, leaderAPIAddr string) error {
	body, err := json.Marshal(raftJoinRequest{LeaderAPIAddr: leaderAPIAddr})
	if err != nil {
		return fmt.Errorf("encoding raft-join request: %w", err)
	}

	req, err := c.newRequest(http.MethodPost, raftJoinPath, body)
	if err != nil {
		return err
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("raft-joining: %w", err)
	}

	if resp.Status != http.StatusOK {
		return fmt.Errorf("raft-joining: %s", resp.Body)
	}

	return nil
}
