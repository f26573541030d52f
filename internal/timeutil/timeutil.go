// Package timeutil parses the dates and times users type on the command
// line.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/timelog/tl/internal/timelog/schema"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDate parses a calendar date: YYYY-MM-DD, or natural language such
// as "today", "yesterday" or "last friday" relative to now. The result is
// the date at UTC midnight, like every date in the log.
func ParseDate(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return schema.DateOf(now), nil
	}
	if d, err := time.Parse(schema.DateLayout, input); err == nil {
		return d, nil
	}

	r, err := parser.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, schema.Validationf("unrecognized date %q (use YYYY-MM-DD, today, yesterday, last monday...)", input)
	}
	return schema.DateOf(r.Time.In(now.Location())), nil
}

// ParseClock parses a strict HH:MM time or "now".
func ParseClock(input string, now time.Time) (schema.Clock, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "now") {
		return schema.ClockOf(now), nil
	}
	return schema.ParseClock(input)
}

// DateArg normalizes a date argument to YYYY-MM-DD. Empty stays empty so
// the tracker applies its own default.
func DateArg(input string, now time.Time) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", nil
	}
	d, err := ParseDate(input, now)
	if err != nil {
		return "", err
	}
	return d.Format(schema.DateLayout), nil
}

// ClockArg normalizes a time argument to HH:MM. Empty stays empty.
func ClockArg(input string, now time.Time) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", nil
	}
	c, err := ParseClock(input, now)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// StartOfWeek returns the Monday of the week containing d.
func StartOfWeek(d time.Time) time.Time {
	weekday := int(d.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	return schema.DateOf(d).AddDate(0, 0, -(weekday - 1))
}

// ParseRange resolves a named period to an inclusive range of dates:
// "today", "yesterday", "this week", "last week", "this month",
// "last month", "this fiscal year" or a single date.
func ParseRange(input string, now time.Time) (start, end time.Time, err error) {
	today := schema.DateOf(now)
	switch strings.ToLower(strings.Join(strings.Fields(input), " ")) {
	case "today":
		return today, today, nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return y, y, nil
	case "this week":
		s := StartOfWeek(today)
		return s, s.AddDate(0, 0, 6), nil
	case "last week":
		s := StartOfWeek(today).AddDate(0, 0, -7)
		return s, s.AddDate(0, 0, 6), nil
	case "this month":
		s := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return s, s.AddDate(0, 1, -1), nil
	case "last month":
		s := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return s, s.AddDate(0, 1, -1), nil
	case "this fiscal year":
		y := today.Year()
		if today.Month() < time.July {
			y--
		}
		s := time.Date(y, time.July, 1, 0, 0, 0, 0, time.UTC)
		return s, s.AddDate(1, 0, -1), nil
	}

	d, err := ParseDate(input, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return d, d, nil
}
