package secret

import (
	"strings"
)

// Redacted is what a Secret renders as anywhere it is formatted or encoded.
const Redacted = "[REDACTED]"

// Secret wraps a sensitive string (unseal key, token) so that it cannot leak
// through logging, formatting or JSON encoding. The inner value is only
// reachable through Expose.
type Secret struct {
	value string
}

// New wraps a sensitive string.
func New(value string) Secret {
	return Secret{value: value}
}

// Expose returns the wrapped plaintext. Call sites are the audit surface for
// secret usage; keep them few.
func (s Secret) Expose() string {
	return s.value
}

// IsBlank reports whether the wrapped value is empty or whitespace only.
func (s Secret) IsBlank() bool {
	return strings.TrimSpace(s.value) == ""
}

func (s Secret) String() string {
	return Redacted
}

func (s Secret) GoString() string {
	return Redacted
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

func (s *Secret) UnmarshalText(text []byte) error {
	s.value = string(text)
	return nil
}

// FromLines splits command or API output into one Secret per line. The
// trailing newline (if any) does not produce an extra entry; interior blank
// lines are kept verbatim so callers can detect malformed key material.
func FromLines(out string) []Secret {
	out = strings.TrimSuffix(out, "\n")
	if out == "" {
		return nil
	}
	lines := strings.Split(out, "\n")
	secrets := make([]Secret, 0, len(lines))
	for _, line := range lines {
		secrets = append(secrets, New(strings.TrimSuffix(line, "\r")))
	}
	return secrets
}
