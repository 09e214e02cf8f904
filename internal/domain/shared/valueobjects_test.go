package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsername(t *testing.T) {
	tests := []struct {
		input   string
		want    Username
		wantErr bool
	}{
		{"alice", "alice", false},
		{"  Alice  ", "alice", false},
		{"xiao.mu_01", "xiao.mu_01", false},
		{"a", "", true},
		{"", "", true},
		{"1starts-with-digit", "", true},
		{"has space", "", true},
		{"喬木", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NewUsername(tt.input)
			if tt.wantErr {
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionToken_IsValid(t *testing.T) {
	assert.True(t, SessionToken("d9428888-122b-11e1-b85c-61cd3cbb3210").IsValid())
	assert.True(t, SessionToken("D9428888-122B-11E1-B85C-61CD3CBB3210").IsValid())
	assert.False(t, SessionToken("").IsValid())
	assert.False(t, SessionToken("not-a-uuid").IsValid())
	assert.False(t, SessionToken("d9428888122b11e1b85c61cd3cbb3210").IsValid())
}
