package report

import (
	"time"

	"cloud.google.com/go/civil"
)

const (
	DateColumn = "fecha"
	TimeColumn = "hora"

	dateLayout = "02-01-2006 15:04:05"
	timeLayout = "15:04:05"
)

// ParseDate reads a "dd-mm-yyyy hh:mm:ss" string and keeps only the date.
// Anything else yields nil.
func ParseDate(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return civil.DateOf(t)
}

// ParseTime reads an "hh:mm:ss" string as a time of day. Anything else yields nil.
func ParseTime(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil
	}
	return civil.TimeOf(t)
}
