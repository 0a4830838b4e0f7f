package composer

import (
	"fmt"
	"time"
)

// FormatDate renders a date with an ordinal day suffix and abbreviated
// month, e.g. "2nd Jan 2026".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d%s %s %d", t.Day(), ordinalSuffix(t.Day()), t.Month().String()[:3], t.Year())
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
