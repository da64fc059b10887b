package displayloop

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollTimeout(t *testing.T) {
	now := time.Unix(100, 0)
	for _, tc := range []struct {
		name     string
		deadline time.Time
		has      bool
		want     int
	}{
		{name: "none", want: -1},
		{name: "past", deadline: now.Add(-time.Second), has: true, want: 0},
		{name: "now", deadline: now, has: true, want: 0},
		{name: "sub millisecond rounds up", deadline: now.Add(time.Microsecond), has: true, want: 1},
		{name: "exact", deadline: now.Add(16 * time.Millisecond), has: true, want: 16},
		{name: "fractional rounds up", deadline: now.Add(16*time.Millisecond + 600*time.Microsecond), has: true, want: 17},
		{name: "clamped", deadline: now.Add(1000 * time.Hour), has: true, want: math.MaxInt32},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, pollTimeout(tc.deadline, tc.has, now))
		})
	}
}
