package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nimbolus/vault-mgmt/pkg/metrics"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

// ErrNoKeys reports an unseal attempt without key material.
var ErrNoKeys = errors.New("no keys provided")

type unsealRequest struct {
	Key     string `json:"key"`
	Reset   bool   `json:"reset"`
	Migrate bool   `json:"migrate"`
}

// Unseal submits the keys in order, one request per key, awaiting channel
// readiness before each. The first rejected key aborts the sequence.
func (c *Client) Unseal(ctx context.Context, keys []secret.Secret) error {
	if len(keys) == 0 {
		return ErrNoKeys
	}

	for _, key := range keys {
		if err := c.sender.Ready(ctx); err != nil {
			return fmt.Errorf("awaiting channel readiness: %w", err)
		}

		body, err := json.Marshal(unsealRequest{Key: key.Expose()})
		if err != nil {
			return fmt.Errorf("encoding unseal request: %w", err)
		}

		req, err := c.newRequest(http.MethodPut, unsealPath, body)
		if err != nil {
			return err
		}

		resp, err := c.sender.Send(ctx, req)
		if err != nil {
			return fmt.Errorf("unsealing: %w", err)
		}
		metrics.UnsealRequestsTotal.Inc()

		if resp.Status < 200 || resp.Status >= 400 {
			return fmt.Errorf("unsealing: %s", resp.Body)
		}
	}

	return nil
}
