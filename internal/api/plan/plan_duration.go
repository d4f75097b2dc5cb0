package plan

import (
	"math"
	"strconv"
	"strings"
)

// DaysOf converts a duration label such as "4 days", "2 weeks" or "1 month"
// into a number of days. Unknown units, malformed labels and values whose
// day count does not fit an int yield 0.
func DaysOf(label string) int {
	parts := strings.Fields(label)
	if len(parts) != 2 {
		return 0
	}
	value, err := strconv.Atoi(parts[0])
	if err != nil || value <= 0 {
		return 0
	}

	var perUnit int
	switch parts[1] {
	case "day", "days":
		perUnit = 1
	case "week", "weeks":
		perUnit = 7
	case "month", "months":
		perUnit = 30
	default:
		return 0
	}
	if value > math.MaxInt/perUnit {
		return 0
	}
	return value * perUnit
}
