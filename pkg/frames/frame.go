package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindAudio   Kind = "audio"
	KindText    Kind = "text"
	KindControl Kind = "control"
	KindSystem  Kind = "system"
)

type ControlCode string

const (
	ControlConfirm ControlCode = "confirm"
	ControlRetry   ControlCode = "retry"
	ControlCancel  ControlCode = "cancel"
)

// Meta keys shared across frame producers and consumers.
const (
	MetaStreamID  = "stream_id"
	MetaSessionID = "session_id"
	MetaTraceID   = "trace_id"
	MetaSource    = "source"
	MetaFieldID   = "field_id"
	MetaReason    = "reason"
	MetaIsFinal   = "is_final"
)

// Source values carried under MetaSource.
const (
	SourceCaller    = "caller"
	SourceAgent     = "agent"
	SourceTransport = "transport"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// AudioFrame signals audio activity on the channel. The payload is opaque to
// this module; only its presence drives the speaking indicator.
type AudioFrame struct {
	pts  int64
	data []byte
	meta map[string]string
}

func NewAudioFrame(streamID string, pts int64, data []byte, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:  pts,
		data: data,
		meta: mergeMeta(streamID, meta),
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }

type TextFrame struct {
	pts  int64
	text string
	meta map[string]string
}

func NewTextFrame(streamID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{
		pts:  pts,
		text: text,
		meta: mergeMeta(streamID, meta),
	}
}

func (t TextFrame) Kind() Kind              { return KindText }
func (t TextFrame) PTS() int64              { return t.pts }
func (t TextFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TextFrame) Text() string            { return t.text }

type ControlFrame struct {
	pts  int64
	code ControlCode
	meta map[string]string
}

func NewControlFrame(streamID string, pts int64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{
		pts:  pts,
		code: code,
		meta: mergeMeta(streamID, meta),
	}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) PTS() int64              { return c.pts }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(streamID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(streamID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(streamID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[streamID] + time.Millisecond.Nanoseconds()
	g.value[streamID] = v
	return v
}

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 1+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
