package presence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NissanArmada/Produck/pkg/chat"
	"github.com/NissanArmada/Produck/pkg/errorsx"
	"github.com/NissanArmada/Produck/pkg/extract"
	"github.com/NissanArmada/Produck/pkg/form"
	"github.com/NissanArmada/Produck/pkg/frames"
	"github.com/NissanArmada/Produck/pkg/guide"
	"github.com/NissanArmada/Produck/pkg/metrics"
	"github.com/NissanArmada/Produck/pkg/redact"
	"github.com/NissanArmada/Produck/pkg/resilience"
	"github.com/NissanArmada/Produck/pkg/speech"
	"github.com/NissanArmada/Produck/pkg/transports"
	"github.com/NissanArmada/Produck/pkg/visual"
)

type Phase int

const (
	PhaseNone Phase = iota
	PhaseConnecting
	PhaseActive
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "NONE"
	case PhaseConnecting:
		return "CONNECTING"
	case PhaseActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Session owns one conversation's lifecycle: it starts and stops the
// transport, routes inbound frames to the guided-fill machine and the chat
// log, and drives the visual indicator. It is the sole writer of visual
// state.
type Session struct {
	mu        sync.Mutex
	phase     Phase
	sessionID string
	cancel    context.CancelFunc

	transport transports.Transport
	guide     *guide.GuidedFill
	doc       form.Document
	chatLog   chat.Sink
	vis       visual.Sink
	obs       metrics.Observer
	retry     resilience.RetryPolicy

	// Speaking-indicator turn guard. A timer fired for an older turn must not
	// flip a newer turn back to idle.
	turn  uint64
	timer *time.Timer
}

func NewSession(tr transports.Transport, g *guide.GuidedFill, doc form.Document, chatLog chat.Sink, vis visual.Sink) *Session {
	if chatLog == nil {
		chatLog = chat.NopSink{}
	}
	if vis == nil {
		vis = visual.NopSink{}
	}
	return &Session{
		transport: tr,
		guide:     g,
		doc:       doc,
		chatLog:   chatLog,
		vis:       vis,
		obs:       metrics.NoopObserver{},
		retry:     resilience.NewRetryPolicy(2, 200*time.Millisecond),
	}
}

func (s *Session) SetObserver(obs metrics.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obs != nil {
		s.obs = obs
	}
}

func (s *Session) SetRetryPolicy(p resilience.RetryPolicy) {
	s.mu.Lock()
	s.retry = p
	s.mu.Unlock()
}

// Start opens the transport and begins consuming frames. Calling Start while
// a session exists is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.phase != PhaseNone {
		s.mu.Unlock()
		return nil
	}
	s.phase = PhaseConnecting
	s.sessionID = uuid.NewString()
	sessionID := s.sessionID
	retry := s.retry
	s.mu.Unlock()

	s.vis.SetIndicator(visual.StateIdle)
	s.vis.SetConnectionStatus("connecting")
	s.vis.SetAgentStatus("Connecting...")

	loopCtx, cancel := context.WithCancel(ctx)
	err := retry.Do(func() error {
		return s.transport.Start(loopCtx)
	})
	if err != nil {
		cancel()
		s.mu.Lock()
		s.phase = PhaseNone
		s.sessionID = ""
		s.mu.Unlock()
		s.vis.SetIndicator(visual.StateInactive)
		s.vis.SetAgentStatus("error")
		s.vis.ShowStopControl(false)
		slog.Info("session_start_failed", "session_id", sessionID, "transport", s.transport.Name(), "reason_code", string(errorsx.Reason(err)), "error", err.Error())
		s.record(metrics.EventSessionStartErr, sessionID)
		return errorsx.Wrap(err, errorsx.ReasonSessionStart)
	}

	s.mu.Lock()
	s.phase = PhaseActive
	s.cancel = cancel
	s.mu.Unlock()

	s.vis.SetConnectionStatus("connected")
	s.vis.SetAgentStatus("Listening...")
	s.vis.ShowStopControl(true)

	readyFields := []any{"session_id", sessionID, "transport", s.transport.Name()}
	if rr, ok := s.transport.(transports.ReadyReporter); ok {
		for k, v := range rr.ReadyFields() {
			readyFields = append(readyFields, k, v)
		}
	}
	slog.Info("session_started", readyFields...)
	s.record(metrics.EventSessionStart, sessionID)

	go s.loop()
	return nil
}

// End tears the session down. Safe to call at any time, any number of times.
func (s *Session) End() {
	s.mu.Lock()
	if s.phase == PhaseNone {
		s.mu.Unlock()
		return
	}
	sessionID := s.sessionID
	cancel := s.cancel
	s.phase = PhaseNone
	s.sessionID = ""
	s.cancel = nil
	s.turn++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = s.transport.Stop()

	s.vis.SetIndicator(visual.StateInactive)
	s.vis.SetAgentStatus("")
	s.vis.SetConnectionStatus("disconnected")
	s.vis.ShowStopControl(false)

	slog.Info("session_ended", "session_id", sessionID)
	s.record(metrics.EventSessionEnd, sessionID)
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) loop() {
	for f := range s.transport.Recv() {
		switch f.Kind() {
		case frames.KindText:
			tf := f.(frames.TextFrame)
			if tf.Meta()[frames.MetaSource] == frames.SourceCaller {
				s.handleCallerText(tf.Text())
				continue
			}
			s.handleAgentText(tf.Text())
		case frames.KindAudio:
			// Audio presence alone marks the agent as speaking; the payload
			// carries no duration hint, so the floor delay applies.
			s.markSpeaking(speech.MinDelay)
		case frames.KindControl:
			cf := f.(frames.ControlFrame)
			s.handleControl(cf.Code())
		case frames.KindSystem:
			sf := f.(frames.SystemFrame)
			if sf.Name() == "session_end" {
				slog.Debug("session_end_frame", "reason", sf.Meta()[frames.MetaReason])
				s.End()
				return
			}
		}
	}
}

func (s *Session) handleCallerText(text string) {
	slog.Debug("caller_utterance", "text", redact.Text(clipText(text)))
	s.chatLog.Append(chat.Message{Source: chat.SourceCaller, Text: text})
	if s.guide != nil {
		s.guide.HandleCallerUtterance(text)
	}
}

// handleAgentText routes one agent utterance. A pending confirmation swallows
// it entirely; otherwise an embedded fill command is executed and stripped
// before display.
func (s *Session) handleAgentText(text string) {
	if s.guide != nil && s.guide.InterceptAgentMessage(text) {
		slog.Debug("agent_message_buffered", "text", redact.Text(clipText(text)))
		return
	}

	display := text
	if cmd, cleaned, ok := extract.Parse(text); ok {
		if s.doc != nil && s.doc.Write(cmd.Field, cmd.Value) {
			slog.Info("embedded_command_applied", "field", string(cmd.Field), "value", redact.Text(cmd.Value))
		} else {
			slog.Info("embedded_command_field_missing", "field", string(cmd.Field))
		}
		display = cleaned
	}

	if display != "" {
		s.chatLog.Append(chat.Message{Source: chat.SourceAgent, Text: display})
	}
	s.markSpeaking(speech.EstimateDelay(display))
}

func (s *Session) handleControl(code frames.ControlCode) {
	if s.guide == nil {
		return
	}
	switch code {
	case frames.ControlConfirm:
		s.guide.Confirm()
	case frames.ControlRetry:
		s.guide.Retry()
	case frames.ControlCancel:
		s.End()
	}
}

// markSpeaking flips the indicator to speaking and schedules the return to
// idle. Each call starts a new turn; a timer from a superseded turn is inert.
func (s *Session) markSpeaking(delay time.Duration) {
	s.mu.Lock()
	if s.phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	s.turn++
	turn := s.turn
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		stale := s.turn != turn || s.phase != PhaseActive
		s.mu.Unlock()
		if stale {
			return
		}
		s.vis.SetIndicator(visual.StateIdle)
		s.vis.SetAgentStatus("Listening...")
	})
	s.mu.Unlock()

	s.vis.SetIndicator(visual.StateSpeaking)
	s.vis.SetAgentStatus("Speaking...")
}

func (s *Session) record(name, sessionID string) {
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{"component": "presence", "session_id": sessionID},
	})
}

func clipText(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 120 {
		return text
	}
	return text[:120] + "..."
}
