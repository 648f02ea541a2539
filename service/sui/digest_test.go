package sui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDigest(t *testing.T) {
	tests := []struct {
		name    string
		digest  string
		wantErr bool
	}{
		{name: "valid 44 chars", digest: "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr"},
		{name: "valid 43 chars", digest: "ZSx1e5zpVu3SY2cwo1vqUrSe34UaGkRdinnbv99nmSc"},
		{name: "empty", digest: "", wantErr: true},
		{name: "too short", digest: "abc", wantErr: true},
		{name: "too long", digest: "8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbrXYZ", wantErr: true},
		{name: "invalid base58 char", digest: "0RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr", wantErr: true},
		{name: "decodes to 31 bytes", digest: "hBxVhPQ8E4i2LegsKLvezqUWNt1atk4gw3hJohmLKh", wantErr: true},
		{name: "hex is not base58 digest", digest: "0x1234567890abcdef1234567890abcdef12345678", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDigest(tt.digest)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDigest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
