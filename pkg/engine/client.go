package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/nimbolus/vault-mgmt/pkg/flavor"
	"github.com/nimbolus/vault-mgmt/pkg/forward"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

const (
	sealStatusPath        = "/v1/sys/seal-status"
	initPath              = "/v1/sys/init"
	unsealPath            = "/v1/sys/unseal"
	stepDownPath          = "/v1/sys/step-down"
	raftJoinPath          = "/v1/sys/storage/raft/join"
	raftConfigurationPath = "/v1/sys/storage/raft/configuration"
)

// Sender is the capability the protocol client needs from a transport: send
// one HTTP request and await its buffered response, and await readiness for
// the next send. *forward.Channel implements it; test doubles do too.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*forward.Response, error)
	Ready(ctx context.Context) error
}

// Client issues typed secrets-engine operations over a Sender.
type Client struct {
	sender Sender
	flavor flavor.Flavor
}

// NewClient wraps a transport in a protocol client for the given flavor.
func NewClient(sender Sender, f flavor.Flavor) *Client {
	return &Client{sender: sender, flavor: f}
}

// Ready awaits transport readiness for the next request.
func (c *Client) Ready(ctx context.Context) error {
	return c.sender.Ready(ctx)
}

// newRequest builds an engine request. Every request is addressed to the
// loopback host and carries the flavor's request marker.
func (c *Client) newRequest(method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequest(method, "http://127.0.0.1"+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Host = "127.0.0.1"
	req.Header.Set(c.flavor.RequestHeader(), "true")
	return req, nil
}

func (c *Client) newAuthenticatedRequest(method, path string, body []byte, token secret.Secret) (*http.Request, error) {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.flavor.TokenHeader(), token.Expose())
	return req, nil
}
