package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"

	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

// FetchUnsealKeys reads unseal keys from a key-value secret at path. The
// secret's data holds the keys as one newline-separated string; blank lines
// are returned verbatim and must be rejected by the caller.
func (c *Client) FetchUnsealKeys(ctx context.Context, path string, token secret.Secret) ([]secret.Secret, error) {
	req, err := c.newAuthenticatedRequest(http.MethodGet, path, nil, token)
	if err != nil {
		return nil, err
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetching unseal keys: %w", err)
	}

	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("fetching unseal keys: %s", resp.Body)
	}

	var payload struct {
		Data struct {
			Data struct {
				Keys string `json:"keys"`
			} `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("decoding unseal keys: %w", err)
	}

	return secret.FromLines(payload.Data.Data.Keys), nil
}

// KeysFromCommand runs cmd through the local shell and wraps each stdout line
// as one unseal key.
func KeysFromCommand(ctx context.Context, cmd string) ([]secret.Secret, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", cmd).Output()
	if err != nil {
		return nil, fmt.Errorf("running key command: %w", err)
	}
	return secret.FromLines(string(out)), nil
}
