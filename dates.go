package forumwatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	yearComma     = regexp.MustCompile(`(\d{4}),\s+`)
	relativeMark  = regexp.MustCompile(`(?i)^(today|yesterday)\s+at\s+`)
	relativeShort = regexp.MustCompile(`(?i)^(\d+)\s*(d|w|h|min|mo)$`)
	bareMinutes   = regexp.MustCompile(`(?i)^\d+\s*m$`)
	relativeAgo   = regexp.MustCompile(`(?i)^(\d+)\s+(minute|hour|day|week|month|year)s?\s+ago$`)
)

// NormalizeCreated rewrites a leading "Today at" or "Yesterday at" marker to
// the matching calendar date of now, e.g. "Today at 14:32" on 2024-03-05
// becomes "2024-03-05 14:32". Other text is returned with whitespace collapsed.
func NormalizeCreated(raw string, now time.Time) string {
	text := strings.TrimSpace(spaceRun.ReplaceAllString(raw, " "))
	m := relativeMark.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	day := now
	if strings.EqualFold(m[1], "yesterday") {
		day = now.AddDate(0, 0, -1)
	}
	return day.Format("2006-01-02") + " " + text[len(m[0]):]
}

// ParseCreated turns the free-text creation field of a topic page into an
// absolute time in loc. Relative markers resolve against now in loc.
func ParseCreated(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	text := NormalizeCreated(raw, now.In(loc))
	if text == "" {
		return time.Time{}, ErrCreatedMissing
	}
	t, err := dateparse.ParseIn(yearComma.ReplaceAllString(text, "$1 "), loc)
	if err != nil {
		return time.Time{}, NewErrorWithCause(ErrCodeParse, fmt.Sprintf("unrecognized creation time %q", raw), err)
	}
	return t, nil
}

// ParseThreshold parses an ignore_older value against now. Accepted forms:
//   - "now", "today", "yesterday" (midnight in loc)
//   - short offsets: "30d", "2w", "12h", "45min", "6mo"
//   - phrases: "3 days ago", "1 month ago"
//   - Go durations: "72h30m"
//   - absolute dates: "2024-01-01", "2024-01-01 08:00", RFC 3339, "January 2, 2024"
//
// A bare "m" unit ("30m") is rejected as ambiguous between minutes and months.
func ParseThreshold(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	text := strings.TrimSpace(spaceRun.ReplaceAllString(value, " "))
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch strings.ToLower(text) {
	case "":
		return time.Time{}, NewError(ErrCodeValidation, "empty threshold")
	case "now":
		return now, nil
	case "today":
		return midnight, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), nil
	}

	if m := relativeShort.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "d":
			return now.AddDate(0, 0, -n), nil
		case "w":
			return now.AddDate(0, 0, -7*n), nil
		case "h":
			return now.Add(-time.Duration(n) * time.Hour), nil
		case "min":
			return now.Add(-time.Duration(n) * time.Minute), nil
		case "mo":
			return now.AddDate(0, -n, 0), nil
		}
	}

	if bareMinutes.MatchString(text) {
		return time.Time{}, NewError(ErrCodeValidation,
			fmt.Sprintf("ambiguous threshold %q: use \"min\" for minutes or \"mo\" for months", value))
	}

	if m := relativeAgo.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "minute":
			return now.Add(-time.Duration(n) * time.Minute), nil
		case "hour":
			return now.Add(-time.Duration(n) * time.Hour), nil
		case "day":
			return now.AddDate(0, 0, -n), nil
		case "week":
			return now.AddDate(0, 0, -7*n), nil
		case "month":
			return now.AddDate(0, -n, 0), nil
		case "year":
			return now.AddDate(-n, 0, 0), nil
		}
	}

	if d, err := time.ParseDuration(text); err == nil {
		if d <= 0 {
			return time.Time{}, NewError(ErrCodeValidation, fmt.Sprintf("threshold %q must be in the past", value))
		}
		return now.Add(-d), nil
	}

	if t, err := dateparse.ParseIn(text, loc); err == nil {
		return t, nil
	}

	return time.Time{}, NewError(ErrCodeValidation, fmt.Sprintf("unrecognized threshold %q", value))
}

// ParseCutoff parses an ignore_older value into a Cutoff. Relative values
// are re-resolved against each scan start, absolute ones stay fixed.
func ParseCutoff(value string, loc *time.Location) (Cutoff, error) {
	if _, err := ParseThreshold(value, time.Now(), loc); err != nil {
		return nil, err
	}
	return func(now time.Time) time.Time {
		t, _ := ParseThreshold(value, now, loc)
		return t
	}, nil
}
