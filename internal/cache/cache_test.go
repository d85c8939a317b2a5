package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLMillis(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want int64
	}{
		{"no expiry", 0, 0},
		{"sub millisecond rounds up", 500 * time.Microsecond, 1},
		{"one nanosecond", time.Nanosecond, 1},
		{"whole milliseconds", 1500 * time.Millisecond, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ttlMillis(tt.ttl))
		})
	}
}
