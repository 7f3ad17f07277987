package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbolus/vault-mgmt/pkg/flavor"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

func TestInitDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireEngineHeaders(t, r, flavor.Vault)
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/sys/init", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.EqualValues(t, 3, body["secret_shares"])
		assert.EqualValues(t, 2, body["secret_threshold"])
		assert.EqualValues(t, 0, body["stored_shares"])
		assert.EqualValues(t, 0, body["recovery_shares"])
		assert.EqualValues(t, 0, body["recovery_threshold"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"keys":["abc","def","ghi"],"keys_base64":["YWJj","ZGVm","Z2hp"],"root_token":"hvs.root"}`)
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv, flavor.Vault).Init(context.Background(), DefaultInitRequest())
	require.NoError(t, err)

	require.Len(t, result.Keys, 3)
	require.Len(t, result.KeysBase64, 3)
	assert.Equal(t, "abc", result.Keys[0].Expose())
	assert.Equal(t, "YWJj", result.KeysBase64[0].Expose())
	assert.Equal(t, "hvs.root", result.RootToken.Expose())
}

func TestInitErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "already initialized", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, flavor.Vault).Init(context.Background(), DefaultInitRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
}

func TestRaftJoinRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireEngineHeaders(t, r, flavor.Vault)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sys/storage/raft/join", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"leader_api_addr":"http://vault-0.vault-internal:8200"}`, string(raw))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).RaftJoin(context.Background(), "http://vault-0.vault-internal:8200")
	assert.NoError(t, err)
}

func TestStepDownExpects204(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireEngineHeaders(t, r, flavor.Vault)
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/sys/step-down", r.URL.Path)
		require.Equal(t, "abc", r.Header.Get("X-Vault-Token"))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).StepDown(context.Background(), secret.New("abc"))
	assert.NoError(t, err)
}

func TestStepDownFailsOnOtherStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).StepDown(context.Background(), secret.New("abc"))
	assert.Error(t, err)
}

func TestStepDownUsesFlavorHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "true", r.Header.Get("X-Openbao-Request"))
		require.Equal(t, "abc", r.Header.Get("X-Openbao-Token"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.OpenBao).StepDown(context.Background(), secret.New("abc"))
	assert.NoError(t, err)
}

func TestFetchUnsealKeysSplitsOnNewline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireEngineHeaders(t, r, flavor.Vault)
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/secret/data/vault-unseal", r.URL.Path)
		require.Equal(t, "abc", r.Header.Get("X-Vault-Token"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"data":{"keys":"k1\nk2\n\nk3"}}}`)
	}))
	defer srv.Close()

	keys, err := newTestClient(t, srv, flavor.Vault).FetchUnsealKeys(context.Background(), "/v1/secret/data/vault-unseal", secret.New("abc"))
	require.NoError(t, err)

	// blank lines are kept verbatim; rejecting them is the caller's job
	require.Len(t, keys, 4)
	assert.Equal(t, "k1", keys[0].Expose())
	assert.Equal(t, "k2", keys[1].Expose())
	assert.Equal(t, "", keys[2].Expose())
	assert.Equal(t, "k3", keys[3].Expose())
}

func TestFetchUnsealKeysErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, flavor.Vault).FetchUnsealKeys(context.Background(), "/v1/secret/data/vault-unseal", secret.New("abc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
