package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundUSD(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"1.50", "1.5"},
		{"-1.005", "-1.01"},
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundUSD(MustMoney(tt.in))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestRoundKHR(t *testing.T) {
	assert.Equal(t, "6150", RoundKHR(MustMoney("6150.4")).String())
	assert.Equal(t, "6151", RoundKHR(MustMoney("6150.5")).String())
}

func TestCeilKHRToGranularity(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		granularity int64
		want        string
		wantDelta   string
	}{
		{"already on boundary", "6100", 100, "6100", "0"},
		{"rounds up", "6150", 100, "6200", "50"},
		{"just above boundary", "6101", 100, "6200", "99"},
		{"zero granularity is a no-op", "6150", 0, "6150", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rounded, delta := CeilKHRToGranularity(MustMoney(tt.in), tt.granularity)
			assert.True(t, MustMoney(tt.want).Equal(rounded), "rounded = %s", rounded)
			assert.True(t, MustMoney(tt.wantDelta).Equal(delta), "delta = %s", delta)
		})
	}
}
