package pac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Wednesday 2025-02-12 14:30:15 local time.
var fixedNow = time.Date(2025, time.February, 12, 14, 30, 15, 0, time.Local)

func newClockedEngine(t *testing.T, now time.Time) *Engine {
	t.Helper()
	e := newTestEngine(t)
	e.host.now = func() time.Time { return now }
	return e
}

func TestWeekdayRange(t *testing.T) {
	e := newClockedEngine(t, fixedNow)

	tests := []struct {
		expr string
		want bool
	}{
		{`weekdayRange("WED")`, true},
		{`weekdayRange("THU")`, false},
		{`weekdayRange("MON", "FRI")`, true},
		{`weekdayRange("THU", "FRI")`, false},
		{`weekdayRange("SAT", "WED")`, true},
		{`weekdayRange("FRI", "MON")`, false},
		{`weekdayRange("wed")`, true},
		{`weekdayRange("XYZ")`, false},
		{`weekdayRange()`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, e, tt.expr))
		})
	}
}

func TestWeekdayRange_GMT(t *testing.T) {
	// Wednesday 23:30 at UTC-5 is Thursday in UTC.
	loc := time.FixedZone("EST", -5*3600)
	e := newClockedEngine(t, time.Date(2025, time.February, 12, 23, 30, 0, 0, loc))

	assert.Equal(t, true, run(t, e, `weekdayRange("THU", "GMT")`))
	assert.Equal(t, false, run(t, e, `weekdayRange("WED", "GMT")`))
}

func TestTimeRange(t *testing.T) {
	e := newClockedEngine(t, fixedNow)

	tests := []struct {
		expr string
		want bool
	}{
		{`timeRange(14)`, true},
		{`timeRange(15)`, false},
		{`timeRange(9, 17)`, true},
		{`timeRange(9, 14)`, false},
		{`timeRange(22, 15)`, true},
		{`timeRange(14, 30, 14, 31)`, true},
		{`timeRange(14, 31, 15, 0)`, false},
		{`timeRange(14, 30, 15, 14, 30, 16)`, true},
		{`timeRange(14, 30, 16, 14, 30, 20)`, false},
		{`timeRange("14")`, true},
		{`timeRange(1, 2, 3)`, false},
		{`timeRange("noon")`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, e, tt.expr))
		})
	}
}

func TestDateRange(t *testing.T) {
	e := newClockedEngine(t, fixedNow)

	tests := []struct {
		expr string
		want bool
	}{
		{`dateRange(12)`, true},
		{`dateRange(13)`, false},
		{`dateRange("FEB")`, true},
		{`dateRange("MAR")`, false},
		{`dateRange(2025)`, true},
		{`dateRange(1995)`, false},
		{`dateRange(10, 20)`, true},
		{`dateRange(13, 20)`, false},
		{`dateRange("JAN", "MAR")`, true},
		{`dateRange("MAR", "DEC")`, false},
		{`dateRange("NOV", "FEB")`, true},
		{`dateRange(1, "FEB", 15, "FEB")`, true},
		{`dateRange(13, "FEB", 15, "MAR")`, false},
		{`dateRange("FEB", 2025, "MAR", 2025)`, true},
		{`dateRange(2020, 2024)`, false},
		{`dateRange(1, "JAN", 2025, 12, "FEB", 2025)`, true},
		{`dateRange(1, "JAN", 2025, 11, "FEB", 2025)`, false},
		{`dateRange("SMARCH")`, false},
		{`dateRange()`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, e, tt.expr))
		})
	}
}

func TestInRange(t *testing.T) {
	assert.True(t, inRange(3, 1, 5))
	assert.False(t, inRange(6, 1, 5))
	assert.True(t, inRange(0, 6, 1))
	assert.True(t, inRange(6, 6, 1))
	assert.False(t, inRange(3, 6, 1))
}
