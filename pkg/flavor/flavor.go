package flavor

import (
	"fmt"
	"strings"
)

// Flavor selects which secrets engine the cluster runs. It controls the label
// keys the engine's pod helper writes and the request headers its API expects.
type Flavor string

const (
	Vault   Flavor = "vault"
	OpenBao Flavor = "openbao"
)

// Parse returns the flavor matching s. The set is closed.
func Parse(s string) (Flavor, error) {
	switch strings.ToLower(s) {
	case string(Vault):
		return Vault, nil
	case string(OpenBao):
		return OpenBao, nil
	default:
		return "", fmt.Errorf("invalid flavor: %q", s)
	}
}

func (f Flavor) String() string {
	return string(f)
}

// Container returns the name of the engine container inside a member pod.
func (f Flavor) Container() string {
	return string(f)
}

// SealedLabel returns the pod label key carrying the seal state.
func (f Flavor) SealedLabel() string {
	return string(f) + "-sealed"
}

// ActiveLabel returns the pod label key carrying the leadership state.
func (f Flavor) ActiveLabel() string {
	return string(f) + "-active"
}

// InitializedLabel returns the pod label key carrying the init state.
func (f Flavor) InitializedLabel() string {
	return string(f) + "-initialized"
}

// NameSelector selects all member pods of this flavor.
func (f Flavor) NameSelector() string {
	return "app.kubernetes.io/name=" + string(f)
}

// ActiveSelector selects members by leadership state.
func (f Flavor) ActiveSelector(active bool) string {
	return fmt.Sprintf("%s=%t", f.ActiveLabel(), active)
}

// SealedSelector selects members by seal state.
func (f Flavor) SealedSelector(sealed bool) string {
	return fmt.Sprintf("%s=%t", f.SealedLabel(), sealed)
}

// RequestHeader returns the marker header every engine request carries.
func (f Flavor) RequestHeader() string {
	return "X-" + f.headerWord() + "-Request"
}

// TokenHeader returns the header carrying the token on authenticated requests.
func (f Flavor) TokenHeader() string {
	return "X-" + f.headerWord() + "-Token"
}

// TokenEnv returns the environment variable consulted for a default token.
func (f Flavor) TokenEnv() string {
	if f == OpenBao {
		return "BAO_TOKEN"
	}
	return "VAULT_TOKEN"
}

func (f Flavor) headerWord() string {
	if f == OpenBao {
		return "Openbao"
	}
	return "Vault"
}
