package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Event names emitted by the guided-fill core.
const (
	EventGuideStart      = "guide_start"
	EventGuideCommit     = "guide_commit"
	EventGuideReject     = "guide_reject"
	EventGuideComplete   = "guide_complete"
	EventGuideFieldMiss  = "guide_field_miss"
	EventAgentBuffered   = "agent_message_buffered"
	EventValidationOK    = "validation_ok"
	EventValidationFail  = "validation_fail"
	EventRateLimit       = "validation_rate_limited"
	EventCooldownSkip    = "validation_cooldown_skip"
	EventSessionStart    = "session_start"
	EventSessionEnd      = "session_end"
	EventSessionStartErr = "session_start_error"
)
