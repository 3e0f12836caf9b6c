// Package preset decides which weekly or event schedule is live.
package preset

import (
	"time"

	"github.com/saunafleet/fleet-server/internal/model"
)

// Source records which rule selected the preset.
type Source string

const (
	SourceEvent    Source = "event"
	SourceAutoPlay Source = "autoplay"
	SourceManual   Source = "manual"
	SourceFailSafe Source = "failsafe"
	SourceFallback Source = "fallback"
)

type Resolution struct {
	Preset  model.PresetKey `json:"preset"`
	Source  Source          `json:"source"`
	EventID string          `json:"eventId,omitempty"`
}

// Resolve applies, first match wins: an active event, autoPlay (weekday of
// now), the manual activePreset, and finally the weekday of now. A manual
// event preset without a running event degrades to the weekday.
func Resolve(schedule, settings model.Document, now time.Time, loc *time.Location) Resolution {
	if loc == nil {
		loc = time.Local
	}

	if ev, ok := ActiveEvent(settings, now, loc); ok {
		return Resolution{Preset: ev.AssignedPreset, Source: SourceEvent, EventID: ev.ID}
	}

	weekday := model.WeekdayPreset(now.In(loc).Weekday())

	if auto, _ := schedule.AutoPlay(); auto {
		return Resolution{Preset: weekday, Source: SourceAutoPlay}
	}

	manual := schedule.ActivePreset()
	switch {
	case manual == "":
		return Resolution{Preset: weekday, Source: SourceFallback}
	case manual.IsEvent():
		return Resolution{Preset: weekday, Source: SourceFailSafe}
	default:
		return Resolution{Preset: manual, Source: SourceManual}
	}
}

// ResolveActivePreset returns only the preset key of Resolve.
func ResolveActivePreset(schedule, settings model.Document, now time.Time, loc *time.Location) model.PresetKey {
	return Resolve(schedule, settings, now, loc).Preset
}

// ActiveEvent returns the running event with the latest start. Ties keep the
// event listed first.
func ActiveEvent(settings model.Document, now time.Time, loc *time.Location) (model.Event, bool) {
	var (
		best  model.Event
		found bool
	)

	for _, ev := range settings.Events(loc) {
		if !ev.IsActive || ev.AssignedPreset == "" {
			continue
		}
		if now.Before(ev.Start) || now.After(ev.EffectiveEnd(loc)) {
			continue
		}
		if !found || ev.Start.After(best.Start) {
			best = ev
			found = true
		}
	}

	return best, found
}
