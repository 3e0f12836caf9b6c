package model

import (
	"strings"
	"time"
)

// Event is a dated schedule override taken from settings.events.
type Event struct {
	ID             string
	AssignedPreset PresetKey
	Start          time.Time
	End            *time.Time
	IsActive       bool
	Index          int
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime accepts RFC 3339 timestamps and zone-less local date-times,
// the latter interpreted in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EffectiveEnd returns the event end, defaulting to 23:59:59 on the start day.
func (e Event) EffectiveEnd(loc *time.Location) time.Time {
	if e.End != nil {
		return *e.End
	}
	s := e.Start.In(loc)
	return time.Date(s.Year(), s.Month(), s.Day(), 23, 59, 59, 0, loc)
}

// Events returns the well-formed entries of the document's events list in
// their original order. Entries without a parsable start are skipped.
func (d Document) Events(loc *time.Location) []Event {
	raw, _ := d[KeyEvents].([]any)
	events := make([]Event, 0, len(raw))

	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		start, ok := eventTime(m, "startDateTime", "startDate", "startTime", loc)
		if !ok {
			continue
		}

		ev := Event{
			ID:             stringField(m, "id"),
			AssignedPreset: PresetKey(stringField(m, "assignedPreset")),
			Start:          start,
			IsActive:       boolField(m, "isActive"),
			Index:          i,
		}
		if end, ok := eventTime(m, "endDateTime", "endDate", "endTime", loc); ok {
			ev.End = &end
		}
		events = append(events, ev)
	}

	return events
}

func eventTime(m map[string]any, combined, dateKey, timeKey string, loc *time.Location) (time.Time, bool) {
	if t, ok := ParseDateTime(stringField(m, combined), loc); ok {
		return t, true
	}
	date := stringField(m, dateKey)
	if date == "" {
		return time.Time{}, false
	}
	if clock := stringField(m, timeKey); clock != "" {
		return ParseDateTime(date+"T"+clock, loc)
	}
	return ParseDateTime(date, loc)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	n, ok := asInt(m[key])
	return ok && n != 0
}
