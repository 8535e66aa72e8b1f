package guide

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/NissanArmada/Produck/pkg/chat"
	"github.com/NissanArmada/Produck/pkg/confirm"
	"github.com/NissanArmada/Produck/pkg/form"
	"github.com/NissanArmada/Produck/pkg/metrics"
	"github.com/NissanArmada/Produck/pkg/redact"
	"github.com/NissanArmada/Produck/pkg/validate"
)

type State int

const (
	StateIdle State = iota
	StatePrompting
	StateAwaitingConfirmation
	StateCompleted
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePrompting:
		return "PROMPTING"
	case StateAwaitingConfirmation:
		return "AWAITING_CONFIRMATION"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Mode selects how a caller value reaches the document.
type Mode string

const (
	// ModeOptimistic commits on first utterance and validates afterward.
	ModeOptimistic Mode = "optimistic"
	// ModeExplicit stages the value and requires a yes/no before committing.
	ModeExplicit Mode = "explicit"
)

// ConfirmationState exists iff the machine is awaiting a yes/no answer.
// It is fully cleared on every exit from that state.
type ConfirmationState struct {
	PendingField form.FieldID
	PendingValue string
}

// ControlSink surfaces the clickable confirm/retry affordance shown when a
// spoken confirmation answer is ambiguous.
type ControlSink interface {
	ShowConfirmControls(field form.FieldID)
	HideConfirmControls()
}

type NopControls struct{}

func (NopControls) ShowConfirmControls(form.FieldID) {}
func (NopControls) HideConfirmControls()             {}

// GuidedFill drives one field at a time to completion from caller speech.
// All transitions happen on event delivery; the background validation call
// joins back only to append messages and never touches the cursor.
type GuidedFill struct {
	mu        sync.Mutex
	mode      Mode
	doc       form.Document
	hl        form.Highlighter
	sink      chat.Sink
	controls  ControlSink
	validator validate.Validator
	obs       metrics.Observer
	ctx       context.Context

	fields       []form.FieldID
	index        int
	active       bool
	attempts     map[form.FieldID]int
	provisional  map[form.FieldID]string
	confirmation *ConfirmationState
	pendingAgent []string
}

func NewGuidedFill(doc form.Document, sink chat.Sink) *GuidedFill {
	if sink == nil {
		sink = chat.NopSink{}
	}
	g := &GuidedFill{
		mode:        ModeOptimistic,
		doc:         doc,
		sink:        sink,
		controls:    NopControls{},
		obs:         metrics.NoopObserver{},
		ctx:         context.Background(),
		attempts:    make(map[form.FieldID]int),
		provisional: make(map[form.FieldID]string),
	}
	if hl, ok := doc.(form.Highlighter); ok {
		g.hl = hl
	}
	return g
}

func (g *GuidedFill) SetMode(mode Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if mode == ModeExplicit {
		g.mode = ModeExplicit
		return
	}
	g.mode = ModeOptimistic
}

func (g *GuidedFill) SetValidator(v validate.Validator) {
	g.mu.Lock()
	g.validator = v
	g.mu.Unlock()
}

func (g *GuidedFill) SetControls(c ControlSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c == nil {
		c = NopControls{}
	}
	g.controls = c
}

func (g *GuidedFill) SetHighlighter(hl form.Highlighter) {
	g.mu.Lock()
	g.hl = hl
	g.mu.Unlock()
}

func (g *GuidedFill) SetObserver(obs metrics.Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if obs != nil {
		g.obs = obs
	}
}

func (g *GuidedFill) SetContext(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ctx != nil {
		g.ctx = ctx
	}
}

// Start begins a guided fill over the given fields, in order. Empty input is
// a no-op. Any previous session state is discarded.
func (g *GuidedFill) Start(fields []form.FieldID) {
	if len(fields) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fields = append([]form.FieldID(nil), fields...)
	g.index = 0
	g.active = true
	g.attempts = make(map[form.FieldID]int)
	g.provisional = make(map[form.FieldID]string)
	g.confirmation = nil
	g.pendingAgent = nil
	g.record(metrics.EventGuideStart, "")
	g.promptLocked()
}

// HandleCallerUtterance is the main transition function: it interprets one
// caller utterance against the current state.
func (g *GuidedFill) HandleCallerUtterance(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}

	if g.confirmation != nil {
		trimmed := strings.TrimSpace(text)
		slog.Debug("guide_confirmation_answer", "field", string(g.confirmation.PendingField), "text", redact.Text(clipText(trimmed)))
		if confirm.IsAffirmative(trimmed) {
			g.commitLocked()
			return
		}
		if confirm.IsNegative(trimmed) {
			g.rejectLocked()
			return
		}
		// Unclear answer: stay put and surface the clickable choice.
		g.controls.ShowConfirmControls(g.confirmation.PendingField)
		return
	}

	fieldID := g.fields[g.index]
	if !g.doc.Lookup(fieldID) {
		g.skipMissingLocked(fieldID)
		return
	}

	cleaned := strings.TrimSpace(text)

	if g.mode == ModeExplicit {
		g.confirmation = &ConfirmationState{PendingField: fieldID, PendingValue: cleaned}
		g.attempts[fieldID]++
		g.sink.Append(chat.Message{Source: chat.SourceAgent, Text: fmt.Sprintf("I heard '%s' for %s. Is that right?", cleaned, fieldID)})
		return
	}

	// Optimistic commit: write immediately, validate in the background.
	g.provisional[fieldID] = cleaned
	if g.doc.Write(fieldID, cleaned) {
		g.sink.Append(chat.Message{Source: chat.SourceAgent, Text: fmt.Sprintf("Saved '%s' for %s.", cleaned, fieldID)})
	} else {
		g.sink.Append(chat.Message{Source: chat.SourceSystem, Text: fmt.Sprintf("Field '%s' not found. Skipping.", fieldID)})
	}
	g.attempts[fieldID] = 0
	g.index++
	g.record(metrics.EventGuideCommit, fieldID)
	slog.Info("guide_commit", "field", string(fieldID), "value", redact.Text(clipText(cleaned)))
	g.promptLocked()
	g.launchValidationLocked(fieldID, cleaned)
}

// Confirm is the click equivalent of an affirmative answer. No-op unless a
// confirmation is pending.
func (g *GuidedFill) Confirm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmation == nil {
		return
	}
	g.commitLocked()
}

// Retry is the click equivalent of a negative answer. No-op unless a
// confirmation is pending.
func (g *GuidedFill) Retry() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmation == nil {
		return
	}
	g.rejectLocked()
}

// InterceptAgentMessage buffers an agent utterance while a confirmation is
// pending, so the agent cannot ask a follow-up before the caller answers.
// Returns true when the message was swallowed. Buffered messages are
// discarded when the confirmation resolves; they are never replayed.
func (g *GuidedFill) InterceptAgentMessage(text string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active || g.confirmation == nil {
		return false
	}
	g.pendingAgent = append(g.pendingAgent, text)
	g.record(metrics.EventAgentBuffered, g.confirmation.PendingField)
	return true
}

func (g *GuidedFill) commitLocked() {
	fieldID := g.confirmation.PendingField
	value := g.confirmation.PendingValue
	g.provisional[fieldID] = value
	if g.doc.Write(fieldID, value) {
		g.sink.Append(chat.Message{Source: chat.SourceAgent, Text: fmt.Sprintf("Confirmed. Saved '%s' for %s.", value, fieldID)})
	} else {
		g.sink.Append(chat.Message{Source: chat.SourceSystem, Text: fmt.Sprintf("Field '%s' not found. Skipping.", fieldID)})
	}
	g.controls.HideConfirmControls()
	g.confirmation = nil
	g.attempts[fieldID] = 0
	g.index++
	g.record(metrics.EventGuideCommit, fieldID)
	slog.Info("guide_confirmed_commit", "field", string(fieldID), "value", redact.Text(clipText(value)))
	g.promptLocked()
	g.drainPendingLocked()
	g.launchValidationLocked(fieldID, value)
}

func (g *GuidedFill) rejectLocked() {
	fieldID := g.confirmation.PendingField
	g.controls.HideConfirmControls()
	g.confirmation = nil
	g.sink.Append(chat.Message{Source: chat.SourceAgent, Text: "Okay, please say the value for that field again."})
	g.record(metrics.EventGuideReject, fieldID)
	slog.Debug("guide_rejected", "field", string(fieldID))
	// Re-prompt the same field without advancing the cursor.
	g.promptLocked()
	g.drainPendingLocked()
}

func (g *GuidedFill) skipMissingLocked(fieldID form.FieldID) {
	g.sink.Append(chat.Message{Source: chat.SourceSystem, Text: fmt.Sprintf("Field '%s' not found. Skipping.", fieldID)})
	g.record(metrics.EventGuideFieldMiss, fieldID)
	slog.Info("guide_field_missing", "field", string(fieldID))
	// Fail open: advance anyway rather than deadlocking the flow.
	g.index++
	g.promptLocked()
}

func (g *GuidedFill) promptLocked() {
	if !g.active {
		return
	}
	if g.index >= len(g.fields) {
		g.sink.Append(chat.Message{Source: chat.SourceAgent, Text: "All fields completed. Thank you!"})
		g.active = false
		if g.hl != nil {
			g.hl.ClearHighlight()
		}
		g.record(metrics.EventGuideComplete, "")
		slog.Info("guide_complete", "fields", len(g.fields))
		return
	}
	fieldID := g.fields[g.index]
	label := g.doc.Label(fieldID)
	if g.hl != nil {
		// Clearing first keeps the at-most-one-highlight invariant even for
		// highlighters that do not replace.
		g.hl.ClearHighlight()
		g.hl.Highlight(fieldID)
	}
	slog.Debug("guide_prompt", "field", string(fieldID), "label", label, "index", g.index)
	g.sink.Append(chat.Message{Source: chat.SourceAgent, Text: "Please say the value for: " + label})
}

func (g *GuidedFill) drainPendingLocked() {
	if len(g.pendingAgent) == 0 {
		return
	}
	slog.Debug("guide_pending_agent_discarded", "count", len(g.pendingAgent))
	g.pendingAgent = nil
}

// launchValidationLocked fires the background validation for a committed
// field. The result never blocks or rewinds the cursor; it may only append
// informational messages.
func (g *GuidedFill) launchValidationLocked(fieldID form.FieldID, committed string) {
	if g.validator == nil {
		return
	}
	snapshot := make(map[form.FieldID]string, len(g.provisional))
	for k, v := range g.provisional {
		snapshot[k] = v
	}
	v := g.validator
	sink := g.sink
	ctx := g.ctx
	go func() {
		out := v.Validate(ctx, fieldID, snapshot)
		if out.FollowUp != "" {
			sink.Append(chat.Message{Source: chat.SourceAgent, Text: out.FollowUp})
		}
		if out.OK && out.Value != "" && out.Value != committed {
			sink.Append(chat.Message{Source: chat.SourceAgent, Text: "Suggestion: " + out.Value})
		}
	}()
}

// State derives the current machine state.
func (g *GuidedFill) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.active && g.confirmation != nil:
		return StateAwaitingConfirmation
	case g.active:
		return StatePrompting
	case len(g.fields) > 0 && g.index >= len(g.fields):
		return StateCompleted
	default:
		return StateIdle
	}
}

func (g *GuidedFill) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *GuidedFill) Index() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index
}

// AwaitingConfirmation reports whether a staged value is pending a yes/no.
func (g *GuidedFill) AwaitingConfirmation() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmation != nil
}

// Confirmation returns a copy of the pending confirmation, if any.
func (g *GuidedFill) Confirmation() (ConfirmationState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmation == nil {
		return ConfirmationState{}, false
	}
	return *g.confirmation, true
}

// Provisional returns a copy of the values committed during this session.
func (g *GuidedFill) Provisional() map[form.FieldID]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[form.FieldID]string, len(g.provisional))
	for k, v := range g.provisional {
		out[k] = v
	}
	return out
}

// Attempts returns the consecutive unresolved tries for a field.
func (g *GuidedFill) Attempts(fieldID form.FieldID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[fieldID]
}

// BufferedAgentMessages returns how many agent messages are currently held
// back by a pending confirmation.
func (g *GuidedFill) BufferedAgentMessages() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pendingAgent)
}

func (g *GuidedFill) record(name string, fieldID form.FieldID) {
	tags := map[string]string{"component": "guide"}
	if fieldID != "" {
		tags["field"] = string(fieldID)
	}
	g.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Tags: tags})
}

func clipText(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= 120 {
		return text
	}
	return text[:120] + "..."
}
