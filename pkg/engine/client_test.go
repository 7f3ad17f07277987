package engine

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbolus/vault-mgmt/pkg/flavor"
	"github.com/nimbolus/vault-mgmt/pkg/forward"
)

// newTestClient connects a channel to the test server over plain TCP, the
// same way the real client runs over a port-forwarded stream.
func newTestClient(t *testing.T, srv *httptest.Server, f flavor.Flavor) *Client {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	ch := forward.Open(conn)
	t.Cleanup(func() { ch.Close() })
	return NewClient(ch, f)
}

// requireEngineHeaders asserts the request marker every engine call carries.
func requireEngineHeaders(t *testing.T, r *http.Request, f flavor.Flavor) {
	t.Helper()
	require.Equal(t, "true", r.Header.Get(f.RequestHeader()))
	require.Equal(t, "127.0.0.1", r.Host)
}
