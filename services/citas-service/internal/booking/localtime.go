package booking

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const DefaultZone = "America/Mexico_City"

// LocalDateTimeLayout is the wire format of fechaHora: a wall clock time with
// no offset, read in the reference zone.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

var localLayouts = []string{
	LocalDateTimeLayout, // fractional seconds are accepted by time.Parse
	"2006-01-02T15:04",
}

func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load reference timezone %q: %w", name, err)
	}
	return loc, nil
}

// ParseLocalDateTime reads an ISO-8601 local date-time in loc.
func ParseLocalDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid(fmt.Sprintf("fechaHora inválida: %q (formato esperado yyyy-MM-ddTHH:mm[:ss])", s))
}

func FormatLocalDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(LocalDateTimeLayout)
}
