package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventCodeIssue       EventType = "code_issue"
	EventDevicePair      EventType = "device_pair"
	EventDeviceUnpair    EventType = "device_unpair"
	EventDevicePurge     EventType = "device_purge"
	EventDeviceRename    EventType = "device_rename"
	EventModeChange      EventType = "mode_change"
	EventOverrideSave    EventType = "override_save"
	EventDocumentWrite   EventType = "document_write"
	EventGarbageCollect  EventType = "garbage_collect"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
	EventAuthFailure     EventType = "auth_failure"
)

type Event struct {
	Type     EventType
	DeviceID string
	Code     string
	IP       string
	Details  map[string]interface{}
}

func Log(_ context.Context, event Event) {
	logger := log.With().
		Str("audit", "fleet").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.DeviceID != "" {
		logger = logger.With().Str("device_id", event.DeviceID).Logger()
	}
	if event.Code != "" {
		logger = logger.With().Str("code", event.Code).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("fleet audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = r.RemoteAddr
	Log(r.Context(), event)
}
