package pac

import (
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

var weekdayNames = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

var monthNames = map[string]time.Month{
	"JAN": time.January,
	"FEB": time.February,
	"MAR": time.March,
	"APR": time.April,
	"MAY": time.May,
	"JUN": time.June,
	"JUL": time.July,
	"AUG": time.August,
	"SEP": time.September,
	"OCT": time.October,
	"NOV": time.November,
	"DEC": time.December,
}

// clock returns the current time, in UTC when the call ended with "GMT".
func (h *hostEnv) clock(args []goja.Value) ([]goja.Value, time.Time) {
	now := h.now()
	if n := len(args); n > 0 {
		if s, ok := args[n-1].Export().(string); ok && strings.EqualFold(s, "GMT") {
			return args[:n-1], now.UTC()
		}
	}
	return args, now.Local()
}

// number converts a JS number or numeric string argument.
func number(v goja.Value) (int, bool) {
	switch x := v.Export().(type) {
	case int64:
		return int(x), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

// inRange reports whether v lies in [lo, hi], wrapping around when lo > hi.
func inRange(v, lo, hi int) bool {
	if lo <= hi {
		return v >= lo && v <= hi
	}
	return v >= lo || v <= hi
}

func weekdayRange(h *hostEnv, args []goja.Value) (any, error) {
	args, now := h.clock(args)
	if len(args) == 0 || len(args) > 2 {
		return false, nil
	}

	days := make([]int, len(args))
	for i, v := range args {
		d, ok := weekdayNames[strings.ToUpper(v.String())]
		if !ok {
			return false, nil
		}
		days[i] = int(d)
	}
	if len(days) == 1 {
		return int(now.Weekday()) == days[0], nil
	}
	return inRange(int(now.Weekday()), days[0], days[1]), nil
}

// timeRange accepts (hour), (h1, h2), (h1, m1, h2, m2) or
// (h1, m1, s1, h2, m2, s2). Ranges are half open.
func timeRange(h *hostEnv, args []goja.Value) (any, error) {
	args, now := h.clock(args)

	values := make([]int, len(args))
	for i, v := range args {
		n, ok := number(v)
		if !ok {
			return false, nil
		}
		values[i] = n
	}

	current := now.Hour()*3600 + now.Minute()*60 + now.Second()
	var start, end int
	switch len(values) {
	case 1:
		return now.Hour() == values[0], nil
	case 2:
		start, end = values[0]*3600, values[1]*3600
	case 4:
		start = values[0]*3600 + values[1]*60
		end = values[2]*3600 + values[3]*60
	case 6:
		start = values[0]*3600 + values[1]*60 + values[2]
		end = values[3]*3600 + values[4]*60 + values[5]
	default:
		return false, nil
	}

	if start <= end {
		return current >= start && current < end, nil
	}
	return current >= start || current < end, nil
}

// dateBound collects the fields given for one end of a dateRange.
type dateBound struct {
	day, year        int
	month            time.Month
	hasDay, hasMonth bool
}

func (b *dateBound) set(v goja.Value) bool {
	if n, ok := number(v); ok {
		switch {
		case n <= 0:
			return false
		case n < 32:
			b.day, b.hasDay = n, true
		default:
			b.year = n
		}
		return true
	}
	m, ok := monthNames[strings.ToUpper(v.String())]
	if ok {
		b.month, b.hasMonth = m, true
	}
	return ok
}

// dateRange accepts a single day, month or year, or a pair of bounds each
// made of the same fields, e.g. (1, "JAN", 15, "MAR") or (1995, 1997).
func dateRange(h *hostEnv, args []goja.Value) (any, error) {
	args, now := h.clock(args)
	if len(args) == 0 || len(args) > 6 {
		return false, nil
	}

	if len(args) == 1 {
		var b dateBound
		if !b.set(args[0]) {
			return false, nil
		}
		switch {
		case b.hasDay:
			return now.Day() == b.day, nil
		case b.hasMonth:
			return now.Month() == b.month, nil
		default:
			return now.Year() == b.year, nil
		}
	}

	from := dateBound{day: 1, month: time.January, year: now.Year()}
	to := dateBound{month: time.December, year: now.Year()}
	half := len(args) / 2
	for i, v := range args {
		bound := &from
		if i >= half {
			bound = &to
		}
		if !bound.set(v) {
			return false, nil
		}
	}

	// Two bare days are days of the current month.
	if len(args) == 2 && from.hasDay && to.hasDay {
		from.month, to.month = now.Month(), now.Month()
	}

	loc := now.Location()
	if !to.hasDay {
		to.day = time.Date(to.year, to.month+1, 0, 0, 0, 0, 0, loc).Day()
	}
	start := time.Date(from.year, from.month, from.day, 0, 0, 0, 0, loc)
	end := time.Date(to.year, to.month, to.day, 23, 59, 59, 0, loc)
	if !start.After(end) {
		return !now.Before(start) && !now.After(end), nil
	}
	return !now.Before(start) || !now.After(end), nil
}
