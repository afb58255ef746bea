package scanner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edgewaretech/edgeware-bluegate/scanner"
)

func TestParseAllowList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wildcard bool
		allowed  []string
		denied   []string
		wantErr  bool
	}{
		{
			name:     "empty means everything",
			input:    "",
			wildcard: true,
			allowed:  []string{"aabbccddeeff", "112233445566"},
		},
		{
			name:     "explicit wildcard",
			input:    "*",
			wildcard: true,
			allowed:  []string{"aabbccddeeff"},
		},
		{
			name:    "semicolon separated",
			input:   "aabbccddeeff;112233445566",
			allowed: []string{"aabbccddeeff", "112233445566", "AA:BB:CC:DD:EE:FF"},
			denied:  []string{"000000000000"},
		},
		{
			name:    "comma separated colon form",
			input:   "AA:BB:CC:DD:EE:FF, 11:22:33:44:55:66",
			allowed: []string{"aabbccddeeff", "112233445566"},
			denied:  []string{"aabbccddeef0"},
		},
		{
			name:     "wildcard among addresses",
			input:    "aabbccddeeff;*",
			wildcard: true,
			allowed:  []string{"000000000000"},
		},
		{
			name:    "invalid entry",
			input:   "aabbccddeeff;nope",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al, err := scanner.ParseAllowList(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wildcard, al.IsWildcard())
			for _, addr := range tt.allowed {
				assert.True(t, al.Allows(addr), "%s MUST be allowed", addr)
			}
			for _, addr := range tt.denied {
				assert.False(t, al.Allows(addr), "%s MUST be denied", addr)
			}
		})
	}
}

func TestAllowList_Addresses(t *testing.T) {
	al, err := scanner.NewAllowList([]string{"AA:BB:CC:DD:EE:FF", "aabbccddeeff", "112233445566"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"aabbccddeeff", "112233445566"}, al.Addresses(), "entries MUST be normalized and deduplicated")
	assert.False(t, al.IsWildcard())
}

func TestAllowList_Nil(t *testing.T) {
	var al *scanner.AllowList
	assert.True(t, al.Allows("aabbccddeeff"))
	assert.Equal(t, "*", al.String())
}
