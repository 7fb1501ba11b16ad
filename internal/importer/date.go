package importer

import (
	"regexp"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var reISODatePrefix = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)

// Accepted when the value does not start with YYYY-MM-DD.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
}

// ParseDate normalizes a permissive date to YYYY-MM-DD. Unparseable or
// empty input returns nil.
func ParseDate(s string) *string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}

	if m := reISODatePrefix.FindStringSubmatch(t); m != nil {
		date := m[1] + "-" + m[2] + "-" + m[3]
		return &date
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, t); err == nil {
			date := parsed.UTC().Format(DateLayout)
			return &date
		}
	}
	return nil
}
