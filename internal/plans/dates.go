package plans

import (
	"fmt"
	"sort"
	"time"
)

const DateLayout = "2006-01-02"

// WeekStart truncates t to the Monday of its week, midnight UTC.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	daysBack := (int(t.Weekday()) + 6) % 7 // Monday = 0
	t = t.AddDate(0, 0, -daysBack)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func WeekStartISO(t time.Time) string {
	return WeekStart(t).Format(DateLayout)
}

func AddDaysISO(dateISO string, days int) (string, error) {
	t, err := time.Parse(DateLayout, dateISO)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", dateISO, err)
	}
	return t.AddDate(0, 0, days).Format(DateLayout), nil
}

func sortStrings(s []string) {
	sort.Strings(s)
}
