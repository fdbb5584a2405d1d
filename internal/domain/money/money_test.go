package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "300.00", Format(decimal.NewFromInt(300)))
	assert.Equal(t, "0.10", Format(decimal.RequireFromString("0.1")))
	assert.Equal(t, "0.00", Format(decimal.Zero))
}

func TestParse(t *testing.T) {
	d, err := Parse("500.00")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(500)))

	d, err = Parse("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = Parse("five")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParsePositive(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0.01", false},
		{"1000.00", false},
		{"0", true},
		{"0.00", true},
		{"-5.00", true},
		{"abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParsePositive(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
