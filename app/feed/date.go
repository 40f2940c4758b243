package feed

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

// ISO-8601 layouts; values without an offset are taken as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts ISO-8601 and RFC-2822 timestamps and returns them in UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnparseableDate)
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	value, err := numericZone(value)
	if err != nil {
		return time.Time{}, err
	}

	if t, err := mail.ParseDate(value); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, value)
}

// RFC-2822 obsolete zone names. net/mail reads any unknown abbreviation as
// UTC, so these are rewritten to offsets and every other name is rejected.
var obsoleteZones = map[string]string{
	"UT": "+0000", "GMT": "+0000", "Z": "+0000",
	"EST": "-0500", "EDT": "-0400",
	"CST": "-0600", "CDT": "-0500",
	"MST": "-0700", "MDT": "-0600",
	"PST": "-0800", "PDT": "-0700",
}

func numericZone(value string) (string, error) {
	idx := strings.LastIndexFunc(value, unicode.IsSpace)
	if idx < 0 {
		return value, nil
	}

	zone := value[idx+1:]
	for _, r := range zone {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return value, nil
		}
	}

	offset, ok := obsoleteZones[strings.ToUpper(zone)]
	if !ok {
		return "", fmt.Errorf("%w: unknown zone %q in %q", ErrUnparseableDate, zone, value)
	}
	return value[:idx+1] + offset, nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
