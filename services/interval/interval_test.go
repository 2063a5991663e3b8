package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hh, mm int) time.Time {
	return time.Date(2030, time.March, 4, hh, mm, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Window
		want bool
	}{
		{"identical", Window{at(9, 0), at(10, 0)}, Window{at(9, 0), at(10, 0)}, true},
		{"partial", Window{at(9, 0), at(10, 0)}, Window{at(9, 30), at(10, 30)}, true},
		{"contained", Window{at(9, 0), at(12, 0)}, Window{at(10, 0), at(11, 0)}, true},
		{"adjacent is free", Window{at(9, 0), at(10, 0)}, Window{at(10, 0), at(11, 0)}, false},
		{"disjoint", Window{at(9, 0), at(10, 0)}, Window{at(11, 0), at(12, 0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a.Start, tt.a.End, tt.b.Start, tt.b.End))
			assert.Equal(t, tt.want, Overlaps(tt.b.Start, tt.b.End, tt.a.Start, tt.a.End), "overlap must be symmetric")
		})
	}
}

func TestConflicts_TwoHourBuffer(t *testing.T) {
	existing := Window{at(10, 0), at(12, 0)}
	buffer := 2 * time.Hour

	tests := []struct {
		name      string
		candidate Window
		want      bool
	}{
		{"starts at existing end", Window{at(12, 0), at(13, 0)}, true},
		{"starts exactly one buffer later", Window{at(14, 0), at(15, 0)}, true},
		{"starts one minute past the buffer", Window{at(14, 1), at(15, 0)}, false},
		{"ends exactly one buffer before", Window{at(7, 0), at(8, 0)}, true},
		{"ends one minute before the buffer", Window{at(6, 59), at(7, 59)}, false},
		{"overlapping", Window{at(11, 0), at(13, 0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Conflicts(existing.Start, existing.End, tt.candidate.Start, tt.candidate.End, buffer)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, !tt.want, WithinBuffer(existing.Start, existing.End, tt.candidate.Start, tt.candidate.End, buffer))
		})
	}
}

func TestConflicts_ZeroBufferAllowsAdjacency(t *testing.T) {
	assert.False(t, Conflicts(at(9, 0), at(10, 0), at(10, 0), at(11, 0), 0))
	assert.True(t, Conflicts(at(9, 0), at(10, 0), at(9, 59), at(11, 0), 0))
}

func TestWindowHelpers(t *testing.T) {
	w, err := New(at(9, 0), at(12, 0))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Hour, w.Duration())
	assert.True(t, w.Contains(Window{at(9, 0), at(12, 0)}))
	assert.False(t, w.Contains(Window{at(8, 59), at(10, 0)}))
	assert.Equal(t, Window{at(8, 0), at(13, 0)}, w.Expand(time.Hour))
	assert.True(t, w.ConflictsWith(Window{at(13, 0), at(14, 0)}, time.Hour))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(at(10, 0), at(10, 0)), ErrEmptyInterval)
	assert.ErrorIs(t, Validate(at(10, 0), at(9, 0)), ErrEmptyInterval)
	assert.NoError(t, Validate(at(9, 0), at(10, 0)))

	_, err := New(at(11, 0), at(10, 0))
	assert.Error(t, err)
}
