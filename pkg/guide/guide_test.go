package guide

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NissanArmada/Produck/pkg/chat"
	"github.com/NissanArmada/Produck/pkg/form"
	"github.com/NissanArmada/Produck/pkg/metrics"
	"github.com/NissanArmada/Produck/pkg/validate"
)

type captureControls struct {
	mu        sync.Mutex
	showCount int
	hideCount int
	lastField form.FieldID
}

func (c *captureControls) ShowConfirmControls(id form.FieldID) {
	c.mu.Lock()
	c.showCount++
	c.lastField = id
	c.mu.Unlock()
}

func (c *captureControls) HideConfirmControls() {
	c.mu.Lock()
	c.hideCount++
	c.mu.Unlock()
}

type fakeValidator struct {
	mu       sync.Mutex
	calls    []form.FieldID
	snapshot map[form.FieldID]string
	outcome  validate.Outcome
	done     chan struct{}
}

func newFakeValidator(outcome validate.Outcome) *fakeValidator {
	return &fakeValidator{outcome: outcome, done: make(chan struct{}, 8)}
}

func (f *fakeValidator) Validate(ctx context.Context, field form.FieldID, provisional map[form.FieldID]string) validate.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, field)
	f.snapshot = provisional
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.outcome
}

func (f *fakeValidator) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("validator was not called")
	}
}

func newTestDoc(ids ...form.FieldID) *form.MemoryDocument {
	doc := form.NewMemoryDocument()
	for _, id := range ids {
		doc.AddField(id, "Label "+string(id))
	}
	return doc
}

func lastMessage(t *testing.T, log *chat.Log) chat.Message {
	t.Helper()
	msgs := log.Messages()
	if len(msgs) == 0 {
		t.Fatalf("no messages")
	}
	return msgs[len(msgs)-1]
}

func waitForMessage(t *testing.T, log *chat.Log, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range log.Messages() {
			if strings.Contains(m.Text, substr) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("message containing %q never appeared; have %v", substr, log.Messages())
}

func TestStartEmptyFieldsIsNoop(t *testing.T) {
	log := chat.NewLog()
	g := NewGuidedFill(newTestDoc("a"), log)

	g.Start(nil)
	if g.Active() {
		t.Fatalf("guide must stay inactive for empty field list")
	}
	if g.State() != StateIdle {
		t.Fatalf("state = %v, want Idle", g.State())
	}
	if log.Len() != 0 {
		t.Fatalf("no messages expected, got %v", log.Messages())
	}
}

func TestStartPromptsFirstField(t *testing.T) {
	doc := newTestDoc("a", "b")
	log := chat.NewLog()
	g := NewGuidedFill(doc, log)

	g.Start([]form.FieldID{"a", "b"})
	if g.State() != StatePrompting {
		t.Fatalf("state = %v, want Prompting", g.State())
	}
	msg := lastMessage(t, log)
	if msg.Source != chat.SourceAgent || msg.Text != "Please say the value for: Label a" {
		t.Fatalf("unexpected prompt: %+v", msg)
	}
	if doc.Highlighted() != "a" {
		t.Fatalf("highlighted = %q, want a", doc.Highlighted())
	}
}

func TestOptimisticFlowToCompletion(t *testing.T) {
	doc := newTestDoc("a", "b")
	log := chat.NewLog()
	g := NewGuidedFill(doc, log)

	g.Start([]form.FieldID{"a", "b"})
	g.HandleCallerUtterance("  alpha  ")
	if v, _ := doc.Value("a"); v != "alpha" {
		t.Fatalf("field a = %q, want trimmed alpha", v)
	}
	waitForMessage(t, log, "Saved 'alpha' for a.")
	waitForMessage(t, log, "Please say the value for: Label b")

	g.HandleCallerUtterance("beta")
	if v, _ := doc.Value("b"); v != "beta" {
		t.Fatalf("field b = %q", v)
	}
	waitForMessage(t, log, "All fields completed. Thank you!")

	if g.State() != StateCompleted {
		t.Fatalf("state = %v, want Completed", g.State())
	}
	if doc.Highlighted() != "" {
		t.Fatalf("highlight must be cleared on completion")
	}

	// Further utterances are no-ops.
	before := log.Len()
	g.HandleCallerUtterance("gamma")
	if log.Len() != before {
		t.Fatalf("completed guide must ignore utterances")
	}
	if v, _ := doc.Value("b"); v != "beta" {
		t.Fatalf("completed guide must not overwrite values")
	}
}

func TestMissingFieldFailsOpen(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	g := NewGuidedFill(doc, log)

	g.Start([]form.FieldID{"ghost", "a"})
	g.HandleCallerUtterance("anything")

	waitForMessage(t, log, "Field 'ghost' not found. Skipping.")
	waitForMessage(t, log, "Please say the value for: Label a")
	if g.Index() != 1 {
		t.Fatalf("index = %d, want 1 after skip", g.Index())
	}

	g.HandleCallerUtterance("value-a")
	waitForMessage(t, log, "All fields completed. Thank you!")
}

func TestExplicitModeCommit(t *testing.T) {
	doc := newTestDoc("a", "b")
	log := chat.NewLog()
	g := NewGuidedFill(doc, log)
	g.SetMode(ModeExplicit)

	g.Start([]form.FieldID{"a", "b"})
	g.HandleCallerUtterance("alpha")

	if g.State() != StateAwaitingConfirmation {
		t.Fatalf("state = %v, want AwaitingConfirmation", g.State())
	}
	if v, ok := doc.Value("a"); ok && v != "" {
		t.Fatalf("real field must not hold the staged value, got %q", v)
	}
	cs, ok := g.Confirmation()
	if !ok || cs.PendingField != "a" || cs.PendingValue != "alpha" {
		t.Fatalf("unexpected confirmation: %+v %v", cs, ok)
	}

	g.HandleCallerUtterance("yes")
	if v, _ := doc.Value("a"); v != "alpha" {
		t.Fatalf("commit did not write the value, got %q", v)
	}
	waitForMessage(t, log, "Confirmed. Saved 'alpha' for a.")
	waitForMessage(t, log, "Please say the value for: Label b")
	if g.AwaitingConfirmation() {
		t.Fatalf("confirmation must clear on commit")
	}
}

func TestExplicitModeReject(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	g := NewGuidedFill(doc, log)
	g.SetMode(ModeExplicit)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")
	g.HandleCallerUtterance("no")

	if v, ok := doc.Value("a"); ok && v != "" {
		t.Fatalf("rejected value must not be written, got %q", v)
	}
	waitForMessage(t, log, "Okay, please say the value for that field again.")
	waitForMessage(t, log, "Please say the value for: Label a")
	if g.Index() != 0 {
		t.Fatalf("reject must not advance, index = %d", g.Index())
	}

	// Second try commits.
	g.HandleCallerUtterance("beta")
	g.HandleCallerUtterance("yep")
	if v, _ := doc.Value("a"); v != "beta" {
		t.Fatalf("field a = %q, want beta", v)
	}
}

func TestAmbiguousAnswerShowsControls(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	controls := &captureControls{}
	g := NewGuidedFill(doc, log)
	g.SetMode(ModeExplicit)
	g.SetControls(controls)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")
	g.HandleCallerUtterance("maybe")

	if !g.AwaitingConfirmation() {
		t.Fatalf("ambiguous answer must not resolve the confirmation")
	}
	controls.mu.Lock()
	defer controls.mu.Unlock()
	if controls.showCount != 1 || controls.lastField != "a" {
		t.Fatalf("controls not shown: %+v", controls)
	}
}

func TestConfirmRetryClicksAreNoopsWhenIdle(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	g := NewGuidedFill(doc, log)

	g.Start([]form.FieldID{"a"})
	before := log.Len()
	g.Confirm()
	g.Retry()
	if log.Len() != before {
		t.Fatalf("clicks outside AwaitingConfirmation must be no-ops")
	}
	if g.Index() != 0 {
		t.Fatalf("index moved on no-op click")
	}
}

func TestConfirmClickCommits(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	controls := &captureControls{}
	g := NewGuidedFill(doc, log)
	g.SetMode(ModeExplicit)
	g.SetControls(controls)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")
	g.Confirm()

	if v, _ := doc.Value("a"); v != "alpha" {
		t.Fatalf("confirm click did not commit, got %q", v)
	}
	controls.mu.Lock()
	defer controls.mu.Unlock()
	if controls.hideCount == 0 {
		t.Fatalf("controls must hide on resolve")
	}
}

func TestAgentMessagesBufferedDuringConfirmation(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	g := NewGuidedFill(doc, log)
	g.SetMode(ModeExplicit)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")

	if !g.InterceptAgentMessage("should the audience include enterprises?") {
		t.Fatalf("agent message must be intercepted while awaiting confirmation")
	}
	if g.BufferedAgentMessages() != 1 {
		t.Fatalf("buffered = %d, want 1", g.BufferedAgentMessages())
	}

	g.HandleCallerUtterance("yes")

	if g.BufferedAgentMessages() != 0 {
		t.Fatalf("buffer must drain on resolve")
	}
	for _, m := range log.Messages() {
		if strings.Contains(m.Text, "enterprises") {
			t.Fatalf("buffered agent message must never be displayed: %+v", m)
		}
	}

	// Outside a confirmation the interceptor passes messages through.
	if g.InterceptAgentMessage("plain agent message") {
		t.Fatalf("interception must only apply while awaiting confirmation")
	}
}

func TestValidationFollowUpAppended(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	v := newFakeValidator(validate.Outcome{OK: false, FollowUp: "Could you be more specific?"})
	g := NewGuidedFill(doc, log)
	g.SetValidator(v)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")

	v.wait(t)
	waitForMessage(t, log, "Could you be more specific?")

	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.calls) != 1 || v.calls[0] != "a" {
		t.Fatalf("validator calls = %v", v.calls)
	}
	if v.snapshot["a"] != "alpha" {
		t.Fatalf("snapshot = %v", v.snapshot)
	}
}

func TestValidationSuggestionAppended(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	v := newFakeValidator(validate.Outcome{OK: true, Value: "Alpha"})
	g := NewGuidedFill(doc, log)
	g.SetValidator(v)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")

	v.wait(t)
	waitForMessage(t, log, "Suggestion: Alpha")
}

func TestValidationMatchingValueNoSuggestion(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	v := newFakeValidator(validate.Outcome{OK: true, Value: "alpha"})
	g := NewGuidedFill(doc, log)
	g.SetValidator(v)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")

	v.wait(t)
	time.Sleep(50 * time.Millisecond)
	for _, m := range log.Messages() {
		if strings.Contains(m.Text, "Suggestion") {
			t.Fatalf("no suggestion expected when value matches: %+v", m)
		}
	}
}

func TestValidationNeverRewindsCursor(t *testing.T) {
	doc := newTestDoc("a", "b")
	log := chat.NewLog()
	v := newFakeValidator(validate.Outcome{OK: false, FollowUp: "That looks off."})
	g := NewGuidedFill(doc, log)
	g.SetValidator(v)

	g.Start([]form.FieldID{"a", "b"})
	g.HandleCallerUtterance("alpha")
	v.wait(t)
	waitForMessage(t, log, "That looks off.")

	if g.Index() != 1 {
		t.Fatalf("validation result must not rewind the cursor, index = %d", g.Index())
	}
	if v, _ := doc.Value("a"); v != "alpha" {
		t.Fatalf("committed value must survive a failed validation")
	}
}

func TestGuideEmitsMetrics(t *testing.T) {
	doc := newTestDoc("a")
	log := chat.NewLog()
	mem := metrics.NewMemoryObserver()
	g := NewGuidedFill(doc, log)
	g.SetObserver(mem)

	g.Start([]form.FieldID{"a"})
	g.HandleCallerUtterance("alpha")

	if len(mem.Named(metrics.EventGuideStart)) != 1 {
		t.Fatalf("missing guide_start event")
	}
	if len(mem.Named(metrics.EventGuideCommit)) != 1 {
		t.Fatalf("missing guide_commit event")
	}
	if len(mem.Named(metrics.EventGuideComplete)) != 1 {
		t.Fatalf("missing guide_complete event")
	}
}
