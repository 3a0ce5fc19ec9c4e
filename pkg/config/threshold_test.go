package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		isPercent bool
		// minBytes on a 100 GB filesystem
		minOn100GB uint64
	}{
		{
			name:       "percentage",
			input:      "15%",
			isPercent:  true,
			minOn100GB: 15_000_000_000,
		},
		{
			name:       "fractional percentage",
			input:      "2.5%",
			isPercent:  true,
			minOn100GB: 2_500_000_000,
		},
		{
			name:       "decimal gigabytes",
			input:      "10GB",
			minOn100GB: 10_000_000_000,
		},
		{
			name:       "binary mebibytes",
			input:      "512MiB",
			minOn100GB: 512 << 20,
		},
		{
			name:       "raw bytes",
			input:      "1048576",
			minOn100GB: 1048576,
		},
		{
			name:       "whitespace tolerated",
			input:      " 20% ",
			isPercent:  true,
			minOn100GB: 20_000_000_000,
		},
		{name: "empty", input: "", wantErr: true},
		{name: "zero percent", input: "0%", wantErr: true},
		{name: "hundred percent", input: "100%", wantErr: true},
		{name: "negative bytes", input: "-5GB", wantErr: true},
		{name: "garbage", input: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.ParseThreshold(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.isPercent, got.IsPercent())
			assert.Equal(t, tt.minOn100GB, got.MinBytes(100_000_000_000))
		})
	}
}

func TestThreshold_MinBytesAbsoluteIgnoresTotal(t *testing.T) {
	th, err := config.ParseThreshold("10GB")
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000_000), th.MinBytes(1))
	assert.Equal(t, uint64(10_000_000_000), th.MinBytes(1<<50))
}

func TestThreshold_UnmarshalText(t *testing.T) {
	var th config.Threshold
	require.NoError(t, th.UnmarshalText([]byte("25%")))
	assert.True(t, th.IsPercent())
	assert.Error(t, th.UnmarshalText([]byte("nope")))
}
