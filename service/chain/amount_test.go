package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals uint8
		want     string // expected smallest-unit integer, decimal string
		wantErr  error
	}{
		{name: "whole number", input: "1", decimals: 18, want: "1000000000000000000"},
		{name: "decimal", input: "1.5", decimals: 18, want: "1500000000000000000"},
		{name: "small fraction", input: "0.000000000000000001", decimals: 18, want: "1"},
		{name: "leading dot", input: ".5", decimals: 18, want: "500000000000000000"},
		{name: "trailing dot", input: "2.", decimals: 18, want: "2000000000000000000"},
		{name: "zero", input: "0", decimals: 18, want: "0"},
		{name: "two decimals currency", input: "10.25", decimals: 2, want: "1025"},
		{name: "trailing zeros past precision are fine", input: "1.2500", decimals: 2, want: "125"},
		{name: "whitespace", input: "  3.5 ", decimals: 18, want: "3500000000000000000"},
		{name: "precision loss", input: "1.255", decimals: 2, wantErr: ErrPrecisionLoss},
		{name: "19 fractional digits", input: "0.0000000000000000001", decimals: 18, wantErr: ErrPrecisionLoss},
		{name: "empty", input: "", wantErr: ErrInvalidAmount, decimals: 18},
		{name: "negative", input: "-1", decimals: 18, wantErr: ErrInvalidAmount},
		{name: "plus sign", input: "+1", decimals: 18, wantErr: ErrInvalidAmount},
		{name: "not a number", input: "abc", decimals: 18, wantErr: ErrInvalidAmount},
		{name: "two dots", input: "1.2.3", decimals: 18, wantErr: ErrInvalidAmount},
		{name: "lone dot", input: ".", decimals: 18, wantErr: ErrInvalidAmount},
		{name: "exponent notation rejected", input: "1e18", decimals: 18, wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.decimals)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals uint8
		want     string
	}{
		{name: "whole", input: "1000000000000000000", decimals: 18, want: "1"},
		{name: "half", input: "1500000000000000000", decimals: 18, want: "1.5"},
		{name: "one wei", input: "1", decimals: 18, want: "0.000000000000000001"},
		{name: "zero", input: "0", decimals: 18, want: "0"},
		{name: "no trailing zeros", input: "1250000000000000000", decimals: 18, want: "1.25"},
		{name: "cents", input: "1025", decimals: 2, want: "10.25"},
		{name: "negative", input: "-1500000000000000000", decimals: 18, want: "-1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := new(big.Int).SetString(tt.input, 10)
			require.True(t, ok)
			assert.Equal(t, tt.want, FormatAmount(v, tt.decimals))
		})
	}
}

// Round-trip: any value expressible within the currency's precision must
// survive ParseAmount ∘ FormatAmount unchanged.
func TestAmountRoundTrip(t *testing.T) {
	inputs := []string{"1.5", "0.000001", "42", "0.1", "999999.999999999999999999"}
	for _, s := range inputs {
		t.Run(s, func(t *testing.T) {
			v, err := ParseAmount(s, 18)
			require.NoError(t, err)
			assert.Equal(t, s, FormatAmount(v, 18))
		})
	}
}

func TestFormatAmountNil(t *testing.T) {
	assert.Equal(t, "0", FormatAmount(nil, 18))
}
