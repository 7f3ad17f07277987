package secret

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExposeReturnsValue(t *testing.T) {
	s := New("hunter2")
	assert.Equal(t, "hunter2", s.Expose())
}

func TestFormattingRedacts(t *testing.T) {
	s := New("hunter2")

	assert.Equal(t, Redacted, s.String())
	assert.Equal(t, Redacted, fmt.Sprintf("%v", s))
	assert.Equal(t, Redacted, fmt.Sprintf("%s", s))
	assert.Equal(t, Redacted, fmt.Sprintf("%#v", s))
	assert.NotContains(t, fmt.Sprintf("%+v", s), "hunter2")
}

func TestJSONEncodingRedacts(t *testing.T) {
	payload := struct {
		Token Secret `json:"token"`
	}{Token: New("hunter2")}

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), Redacted)
}

func TestUnmarshalText(t *testing.T) {
	var s Secret
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &s))
	assert.Equal(t, "abc", s.Expose())
}

func TestIsBlank(t *testing.T) {
	assert.True(t, New("").IsBlank())
	assert.True(t, New("  \t").IsBlank())
	assert.False(t, New("k").IsBlank())
}

func TestFromLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "abc", []string{"abc"}},
		{"trailing newline", "abc\ndef\n", []string{"abc", "def"}},
		{"interior blank kept", "abc\n\ndef", []string{"abc", "", "def"}},
		{"crlf", "abc\r\ndef\r\n", []string{"abc", "def"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromLines(tt.in)
			require.Len(t, got, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want, got[i].Expose())
			}
		})
	}
}
