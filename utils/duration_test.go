package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
	}{
		{"1d", 24 * time.Hour},
		{"2h30m", 2*time.Hour + 30*time.Minute},
		{"45m", 45 * time.Minute},
		{"1d2h15m30s", 26*time.Hour + 15*time.Minute + 30*time.Second},
		{"90s", 90 * time.Second},
		{"  3h  ", 3 * time.Hour},
		{"1D2H", 26 * time.Hour},
	}

	for _, tc := range cases {
		got, err := ParseDuration(tc.input)
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.want, got, "input %q", tc.input)
	}
}

func TestParseDurationRejectsInvalid(t *testing.T) {
	for _, input := range []string{"", "abc", "1w", "0s", "h30m", "-1h"} {
		_, err := ParseDuration(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		input time.Duration
		want  string
	}{
		{24 * time.Hour, "1d"},
		{26*time.Hour + 30*time.Minute, "1d 2h 30m"},
		{90 * time.Minute, "1h 30m"},
		{45 * time.Second, "45s"},
		{0, "0s"},
		{-time.Minute, "0s"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatDuration(tc.input), "input %s", tc.input)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, input := range []string{"1d 2h 30m", "45m", "1h 15m"} {
		d, err := ParseDuration(input)
		require.NoError(t, err)
		assert.Equal(t, input, FormatDuration(d))
	}
}
