package upgrade

import (
	"errors"
	"fmt"

	"github.com/nimbolus/vault-mgmt/pkg/secret"
)

// ErrBlankKey reports key material containing an empty line; the key source
// is misconfigured.
var ErrBlankKey = errors.New("blank unseal key")

// Options parameterize one upgrade run. They are immutable for its duration.
type Options struct {
	// Token authenticates step-down requests.
	Token secret.Secret
	// Unseal submits the key sequence to sealed members after restart. When
	// false, an external agent is expected to unseal.
	Unseal bool
	// Force re-rolls members that already run the target version.
	Force bool
	// Keys is the ordered unseal key sequence.
	Keys []secret.Secret
}

// Validate rejects option sets that would stall mid-upgrade.
func (o Options) Validate() error {
	if o.Unseal && len(o.Keys) == 0 {
		return errors.New("unsealing requested but no keys provided")
	}
	for i, key := range o.Keys {
		if key.IsBlank() {
			return fmt.Errorf("%w at position %d", ErrBlankKey, i)
		}
	}
	return nil
}
