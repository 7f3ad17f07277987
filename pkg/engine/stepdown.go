package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nimbolus/vault-mgmt/pkg/metrics"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

// StepDown asks the active member to relinquish leadership. The engine
// answers 204 No Content on success.
func (c *Client) StepDown(ctx context.Context, token secret.Secret) error {
	req, err := c.newAuthenticatedRequest(http.MethodPut, stepDownPath, nil, token)
	if err != nil {
		return err
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("stepping down: %w", err)
	}

	if resp.Status != http.StatusNoContent {
		return fmt.Errorf("stepping down: %s", resp.Body)
	}
	metrics.StepDownsTotal.Inc()

	return nil
}
