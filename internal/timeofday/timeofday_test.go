package timeofday

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinutes(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr error
	}{
		{"00:00", 0, nil},
		{"9:05", 545, nil},
		{"09:00", 540, nil},
		{"23:59", 1439, nil},
		{"24:00", 0, ErrFormat},
		{"12:60", 0, ErrFormat},
		{"9:60", 0, ErrFormat},
		{" 9:00", 0, ErrFormat},
		{"09:00 ", 0, ErrFormat},
		{"09:00\n", 0, ErrFormat},
		{"7", 0, ErrFormat},
		{"123:00", 0, ErrFormat},
		{"ab:cd", 0, ErrFormat},
		{"", 0, ErrFormat},
		{"09:0", 0, ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToMinutes(tt.in)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromMinutes(t *testing.T) {
	got, err := FromMinutes(545)
	require.NoError(t, err)
	assert.Equal(t, "09:05", got)

	_, err = FromMinutes(-1)
	assert.ErrorIs(t, err, ErrRange)
	_, err = FromMinutes(MinutesPerDay)
	assert.ErrorIs(t, err, ErrRange)
}

func TestRoundTripEveryMinute(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		s, err := FromMinutes(m)
		require.NoError(t, err)
		back, err := ToMinutes(s)
		require.NoError(t, err)
		if back != m {
			t.Fatalf("round trip mismatch: %d -> %s -> %d", m, s, back)
		}
	}
}

func TestAddDuration(t *testing.T) {
	end, err := AddDuration("16:00", 120)
	require.NoError(t, err)
	assert.Equal(t, "18:00", end)

	end, err = AddDuration("23:00", 59)
	require.NoError(t, err)
	assert.Equal(t, "23:59", end)

	_, err = AddDuration("23:00", 60)
	assert.ErrorIs(t, err, ErrRange)

	_, err = AddDuration("10:00", -5)
	assert.ErrorIs(t, err, ErrRange)

	_, err = AddDuration("10h", 5)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(60, 120, 90, 150))
	assert.False(t, Overlaps(60, 120, 120, 180), "touching intervals do not overlap")
	assert.True(t, Overlaps(60, 180, 90, 120))
}
