package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbolus/vault-mgmt/pkg/flavor"
	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

func TestUnsealFailsWithoutKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).Unseal(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestUnsealSubmitsKeysInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireEngineHeaders(t, r, flavor.Vault)
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/sys/unseal", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body struct {
			Key     string `json:"key"`
			Reset   bool   `json:"reset"`
			Migrate bool   `json:"migrate"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		require.False(t, body.Reset)
		require.False(t, body.Migrate)

		mu.Lock()
		seen = append(seen, body.Key)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).Unseal(context.Background(), []secret.Secret{
		secret.New("abc"),
		secret.New("def"),
		secret.New("ghi"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def", "ghi"}, seen)
}

func TestUnsealAbortsOnFirstRejectedKey(t *testing.T) {
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 2 {
			http.Error(w, "invalid key", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).Unseal(context.Background(), []secret.Secret{
		secret.New("abc"),
		secret.New("bad"),
		secret.New("ghi"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
	assert.Equal(t, 2, calls)
}

func TestUnsealAcceptsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://vault-0:8200/v1/sys/unseal")
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).Unseal(context.Background(), []secret.Secret{secret.New("abc")})
	assert.NoError(t, err)
}

func TestUnsealErrorDoesNotLeakKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	err := newTestClient(t, srv, flavor.Vault).Unseal(context.Background(), []secret.Secret{secret.New("super-secret-key")})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")
}
