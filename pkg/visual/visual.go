package visual

import "sync"

type State int

const (
	StateInactive State = iota
	StateIdle
	StateSpeaking
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateIdle:
		return "IDLE"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Sink receives visual updates from the session layer. The session layer is
// the sole writer; implementations only render.
type Sink interface {
	SetIndicator(s State)
	SetAgentStatus(text string)
	SetConnectionStatus(text string)
	ShowStopControl(visible bool)
}

// Memory records the latest visual state, for wiring into UIs and for tests.
type Memory struct {
	mu               sync.Mutex
	indicator        State
	agentStatus      string
	connectionStatus string
	stopVisible      bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SetIndicator(s State) {
	m.mu.Lock()
	m.indicator = s
	m.mu.Unlock()
}

func (m *Memory) SetAgentStatus(text string) {
	m.mu.Lock()
	m.agentStatus = text
	m.mu.Unlock()
}

func (m *Memory) SetConnectionStatus(text string) {
	m.mu.Lock()
	m.connectionStatus = text
	m.mu.Unlock()
}

func (m *Memory) ShowStopControl(visible bool) {
	m.mu.Lock()
	m.stopVisible = visible
	m.mu.Unlock()
}

func (m *Memory) Indicator() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indicator
}

func (m *Memory) AgentStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agentStatus
}

func (m *Memory) ConnectionStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionStatus
}

func (m *Memory) StopControlVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopVisible
}

// NopSink ignores every update.
type NopSink struct{}

func (NopSink) SetIndicator(State)         {}
func (NopSink) SetAgentStatus(string)      {}
func (NopSink) SetConnectionStatus(string) {}
func (NopSink) ShowStopControl(bool)       {}
