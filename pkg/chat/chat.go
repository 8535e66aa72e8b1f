package chat

import "sync"

// Source tags who a displayed message is attributed to.
type Source string

const (
	SourceAgent  Source = "agent"
	SourceCaller Source = "user"
	SourceSystem Source = "system"
)

type Message struct {
	Source Source
	Text   string
}

// Sink renders messages in strict emission order. It interprets nothing.
type Sink interface {
	Append(msg Message)
}

// Log is an in-memory ordered sink, safe for concurrent appenders.
type Log struct {
	mu       sync.Mutex
	messages []Message
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(msg Message) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

// Messages returns a copy of the log in emission order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(msg Message)

func (f SinkFunc) Append(msg Message) { f(msg) }

// NopSink discards every message.
type NopSink struct{}

func (NopSink) Append(Message) {}
