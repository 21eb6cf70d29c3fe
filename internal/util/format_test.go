package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatProcessingDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{-time.Second, "-"},
		{500 * time.Microsecond, "500µs"},
		{1500*time.Millisecond + 300*time.Microsecond, "1.5s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatProcessingDuration(tt.in))
	}
}

func TestJobDuration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(42 * time.Second)

	assert.Equal(t, 42*time.Second, JobDuration(&start, &end))
	assert.Zero(t, JobDuration(&start, nil))
	assert.Zero(t, JobDuration(nil, &end))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "a b c", Truncate(" a\n b\tc ", 10))
	assert.Equal(t, "abcdef...", Truncate("abcdefghijkl", 9))
	assert.Equal(t, "ééé...", Truncate("éééééééé", 6))
}
