// Package dateparse turns the loosely formatted date and time strings found
// on event pages into instants in a given location.
package dateparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SentinelHour is used when only a date is known. Noon keeps a date-only
// value from rendering as "00:00", which downstream treats as "no time".
const SentinelHour = 12

var ErrNoDate = errors.New("no recognizable date")

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	spaces    = regexp.MustCompile(`\s+`)
	ordinal   = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)\b`)
	meridiem  = regexp.MustCompile(`(?i)(\d)\s*([ap])\.?\s?m\b\.?`)
	weekday   = regexp.MustCompile(`(?i)^(?:mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)[a-z]*\.?,?\s+`)
	slashDate = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	clockRe   = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm|a|p)?\s*$`)
	monthWord = regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?$`)
)

var dateTimeLayouts = []string{
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3 PM",
	"January 2 2006 3:04 PM",
	"Jan 2 2006 3:04 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 3 PM",
	"1/2/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"1/2/2006",
	"2006-01-02",
}

// Parse reads a date or date-time string in loc. The bool reports whether a
// time of day was present; when it was not, the result sits at SentinelHour.
// RFC 3339 strings with an explicit offset keep their instant.
func Parse(s string, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.Local
	}
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, false, ErrNoDate
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05-0700", time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.In(loc), true, nil
		}
	}

	norm := Normalize(raw)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, norm, loc); err == nil {
			return t, true, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, norm, loc); err == nil {
			return AtSentinel(t), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("parse %q: %w", s, ErrNoDate)
}

// Normalize rewrites common variations into the shapes Parse's layouts know:
// leading weekday dropped, ordinals removed, month names canonicalized
// ("Sept." -> "Sep"), "7p.m." -> "7 PM", and "at"/"@" between date and time removed.
func Normalize(s string) string {
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")
	s = weekday.ReplaceAllString(s, "")
	s = ordinal.ReplaceAllString(s, "$1")
	s = strings.NewReplacer(" at ", " ", " @ ", " ", " - ", " ").Replace(s)
	s = meridiem.ReplaceAllStringFunc(s, func(m string) string {
		sub := meridiem.FindStringSubmatch(m)
		if strings.EqualFold(sub[2], "p") {
			return sub[1] + " PM"
		}
		return sub[1] + " AM"
	})

	fields := strings.Fields(s)
	for i, f := range fields {
		if !monthWord.MatchString(f) {
			continue
		}
		m, ok := MonthFromName(f)
		if !ok {
			continue
		}
		if len(strings.TrimSuffix(f, ".")) <= 4 {
			fields[i] = m.String()[:3]
		} else {
			fields[i] = m.String()
		}
	}
	return strings.Join(fields, " ")
}

// MonthFromName accepts full names and abbreviations of at least three
// letters, with or without a trailing period, in any case.
func MonthFromName(s string) (time.Month, bool) {
	key := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if m, ok := months[key]; ok {
		return m, true
	}
	if len(key) < 3 {
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		if strings.HasPrefix(strings.ToLower(m.String()), key) {
			return m, true
		}
	}
	return 0, false
}

// ParseClock reads "7:30 PM", "7pm", "19:30" or "7". When the string carries
// no meridiem and biasPM is set, hours 1-11 are read as afternoon/evening.
func ParseClock(s string, biasPM bool) (hour, minute int, ok bool) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), ".", "")
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	switch strings.TrimSuffix(m[3], "m") {
	case "p":
		if hour < 12 {
			hour += 12
		}
	case "a":
		if hour == 12 {
			hour = 0
		}
	default:
		if biasPM && hour >= 1 && hour <= 11 {
			hour += 12
		}
	}
	return hour, minute, true
}

// AtClock places the wall-clock time on t's calendar date in t's location.
func AtClock(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

// AtSentinel moves t to SentinelHour on its own date.
func AtSentinel(t time.Time) time.Time {
	return AtClock(t, SentinelHour, 0)
}

// EndOnSameDate builds the end instant from an end clock time reported on the
// start's literal date. An end at or before the start is an overnight span
// and rolls to the next day.
func EndOnSameDate(start time.Time, hour, minute int) time.Time {
	end := AtClock(start, hour, minute)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// SlashDates returns every MM/DD/YYYY token in text, in order, at SentinelHour.
func SlashDates(text string, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	var out []time.Time
	for _, m := range slashDate.FindAllStringSubmatch(text, -1) {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		t := time.Date(year, time.Month(month), day, SentinelHour, 0, 0, 0, loc)
		if t.Day() != day {
			continue
		}
		out = append(out, t)
	}
	return out
}

// InferYear returns month/day in the current year of now, or the next year
// when that date has already passed.
func InferYear(month time.Month, day int, now time.Time) time.Time {
	loc := now.Location()
	t := time.Date(now.Year(), month, day, SentinelHour, 0, 0, 0, loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if t.Before(today) {
		t = t.AddDate(1, 0, 0)
	}
	return t
}

// SameDate reports whether a and b fall on the same calendar date in a's location.
func SameDate(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
