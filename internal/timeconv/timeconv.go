// Package timeconv converts limit-log mission timestamps to calendar dates
// of the form YYYY:DDD:hh:mm:ss.sss.
package timeconv

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Converter interface {
	ToCalendar(raw string) (string, error)
}

// Func adapts a plain function to Converter.
type Func func(raw string) (string, error)

func (f Func) ToCalendar(raw string) (string, error) {
	return f(raw)
}

var (
	// YYYYDDD.hhmmsssss, seconds followed by up to three millisecond digits.
	reGreta = regexp.MustCompile(`^(\d{4})(\d{3})\.(\d{2})(\d{2})(\d{2})(\d{0,3})\d*$`)
	// YYYY:DDD:hh:mm:ss[.sss]
	reDate = regexp.MustCompile(`^(\d{4}):(\d{3}):(\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,3})\d*)?$`)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// Greta understands the GRETA timestamp encoding, calendar dates that are
// already in day-of-year form, and the common RFC3339 layouts (read as UTC).
type Greta struct{}

func (Greta) ToCalendar(raw string) (string, error) {
	t, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return Format(t), nil
}

// Parse reads a mission timestamp into a UTC time.
func Parse(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if m := reGreta.FindStringSubmatch(value); m != nil {
		return fromDayOfYear(m[1], m[2], m[3], m[4], m[5], m[6])
	}
	if m := reDate.FindStringSubmatch(value); m != nil {
		return fromDayOfYear(m[1], m[2], m[3], m[4], m[5], m[6])
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

// Format renders t as YYYY:DDD:hh:mm:ss.sss.
func Format(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d:%03d:%02d:%02d:%02d.%03d",
		t.Year(), t.YearDay(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}

func fromDayOfYear(year, doy, hour, minute, sec, frac string) (time.Time, error) {
	y, _ := strconv.Atoi(year)
	d, _ := strconv.Atoi(doy)
	h, _ := strconv.Atoi(hour)
	mi, _ := strconv.Atoi(minute)
	s, _ := strconv.Atoi(sec)
	ms := 0
	if frac != "" {
		frac = (frac + "00")[:3]
		ms, _ = strconv.Atoi(frac)
	}
	if d < 1 || d > daysIn(y) {
		return time.Time{}, fmt.Errorf("day of year out of range: %d", d)
	}
	if h > 23 || mi > 59 || s > 60 {
		return time.Time{}, fmt.Errorf("time of day out of range: %s:%s:%s", hour, minute, sec)
	}
	base := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, d-1).Add(
		time.Duration(h)*time.Hour +
			time.Duration(mi)*time.Minute +
			time.Duration(s)*time.Second +
			time.Duration(ms)*time.Millisecond), nil
}

func daysIn(year int) int {
	if time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay() == 366 {
		return 366
	}
	return 365
}
