package accounts_test

import (
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		region   string
		expected string
		wantErr  bool
	}{
		{name: "empty", raw: "  ", region: "US", expected: ""},
		{name: "international", raw: "+44 121 234 5678", region: "US", expected: "+441212345678"},
		{name: "national with region", raw: "(650) 253-0000", region: "us", expected: "+16502530000"},
		{name: "garbage", raw: "call me", region: "US", wantErr: true},
		{name: "too short", raw: "12", region: "US", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := accounts.NormalizePhone(tt.raw, tt.region)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, accounts.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
