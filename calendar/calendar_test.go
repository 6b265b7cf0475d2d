package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *Calendar {
	t.Helper()
	c, err := New(Config{
		Timezone: "America/New_York",
		RTH:      Window{Name: "rth", Start: "09:30", End: "16:00"},
		Holidays: []string{"2024-07-04"},
	})
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Timezone: "Mars/Olympus"})
	assert.Error(t, err)

	_, err = New(Config{Timezone: "UTC", RTH: Window{Start: "9h30", End: "16:00"}})
	assert.Error(t, err)

	_, err = New(Config{Timezone: "UTC", Weekdays: []string{"funday"}})
	assert.Error(t, err)
}

func TestIsRTHAcrossDST(t *testing.T) {
	c := newYork(t)

	// Friday before the March 2024 DST switch: 09:30 EST == 14:30Z.
	ok, err := c.IsRTH(time.Date(2024, 3, 8, 13, 45, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok, "08:45 EST is pre-market")

	ok, err = c.IsRTH(time.Date(2024, 3, 8, 14, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	// Monday after the switch: 09:30 EDT == 13:30Z.
	ok, err = c.IsRTH(time.Date(2024, 3, 11, 13, 45, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok, "09:45 EDT is regular hours")

	ok, err = c.IsRTH(time.Date(2024, 3, 11, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok, "16:00 EDT is the exclusive close")
}

func TestNaiveTimestampRejected(t *testing.T) {
	c := newYork(t)
	var ne *NaiveTimestampError

	_, err := c.IsRTH(time.Date(2024, 3, 8, 10, 0, 0, 0, time.Local))
	assert.True(t, errors.As(err, &ne))

	_, _, err = c.SessionAt(time.Time{})
	assert.True(t, errors.As(err, &ne))

	_, err = ParseTimestamp("2024-03-08T10:00:00")
	assert.True(t, errors.As(err, &ne))
}

func TestSessionAtAndEnd(t *testing.T) {
	c := newYork(t)
	ny := c.Location()

	ts := time.Date(2024, 3, 11, 10, 15, 0, 0, ny)
	s, ok, err := c.SessionAt(ts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rth", s.Name)
	assert.True(t, s.Start.Equal(time.Date(2024, 3, 11, 9, 30, 0, 0, ny)))

	end, err := c.SessionEnd(ts)
	require.NoError(t, err)
	assert.True(t, end.Equal(time.Date(2024, 3, 11, 16, 0, 0, 0, ny)))

	_, err = c.SessionEnd(time.Date(2024, 3, 11, 17, 0, 0, 0, ny))
	assert.ErrorIs(t, err, ErrOutsideSession)

	_, ok, err = c.SessionAt(time.Date(2024, 7, 4, 10, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.False(t, ok, "holiday has no session")
}

func TestNextSessionStartSkipsWeekend(t *testing.T) {
	c := newYork(t)
	ny := c.Location()

	s, err := c.NextSessionStart(time.Date(2024, 3, 9, 12, 0, 0, 0, ny)) // Saturday
	require.NoError(t, err)
	assert.True(t, s.Start.Equal(time.Date(2024, 3, 11, 9, 30, 0, 0, ny)))
}

func TestNextBarBoundary(t *testing.T) {
	c := newYork(t)
	ny := c.Location()
	tf := 5 * time.Minute

	tests := []struct {
		name string
		ts   time.Time
		want time.Time
	}{
		{"pre-open rolls to open", time.Date(2024, 3, 11, 9, 29, 0, 0, ny), time.Date(2024, 3, 11, 9, 30, 0, 0, ny)},
		{"on boundary moves to next bar", time.Date(2024, 3, 11, 9, 30, 0, 0, ny), time.Date(2024, 3, 11, 9, 35, 0, 0, ny)},
		{"mid bar", time.Date(2024, 3, 11, 9, 33, 10, 0, ny), time.Date(2024, 3, 11, 9, 35, 0, 0, ny)},
		{"last bar rolls to next session", time.Date(2024, 3, 11, 15, 57, 0, 0, ny), time.Date(2024, 3, 12, 9, 30, 0, 0, ny)},
		{"friday close rolls to monday", time.Date(2024, 3, 8, 16, 30, 0, 0, ny), time.Date(2024, 3, 11, 9, 30, 0, 0, ny)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, s, err := c.NextBarBoundary(tt.ts, tf)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
			assert.True(t, got.After(tt.ts))
			assert.True(t, s.Contains(got))
		})
	}
}

func TestOvernightWindow(t *testing.T) {
	c, err := New(Config{
		Timezone: "America/Chicago",
		Sessions: []Window{{Name: "globex", Start: "17:00", End: "16:00"}},
		RTH:      Window{Start: "08:30", End: "15:15"},
		Weekdays: []string{"sun", "mon", "tue", "wed", "thu"},
	})
	require.NoError(t, err)
	chi := c.Location()

	// Tuesday 02:00 belongs to the session that opened Monday 17:00.
	s, ok, err := c.SessionAt(time.Date(2024, 3, 12, 2, 0, 0, 0, chi))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.Start.Equal(time.Date(2024, 3, 11, 17, 0, 0, 0, chi)))
	assert.True(t, s.End.Equal(time.Date(2024, 3, 12, 16, 0, 0, 0, chi)))

	rth, err := c.IsRTH(time.Date(2024, 3, 12, 2, 0, 0, 0, chi))
	require.NoError(t, err)
	assert.False(t, rth)
}
