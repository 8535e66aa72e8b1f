package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/NissanArmada/Produck/pkg/errorsx"
	"github.com/NissanArmada/Produck/pkg/frames"
)

type Config struct {
	URL              string `mapstructure:"url"`
	HandshakeTimeout int    `mapstructure:"handshake_timeout_ms"`
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10000
	}
	return c
}

// Transport dials a conversation event channel over a websocket and maps its
// JSON events onto frames. Inbound ordering follows the socket's arrival
// order.
type Transport struct {
	cfg    Config
	recvCh chan frames.Frame

	mu       sync.Mutex
	conn     *websocket.Conn
	sendCh   chan []byte
	streamID string
	traceID  string

	closed atomic.Bool
}

// Event is the wire shape of one channel message.
type Event struct {
	Event  string `json:"event"`
	Source string `json:"source,omitempty"`
	Text   string `json:"text,omitempty"`
	Audio  []byte `json:"audio,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func New(cfg Config) *Transport {
	return &Transport{
		cfg:    cfg.withDefaults(),
		recvCh: make(chan frames.Frame, 512),
	}
}

func (t *Transport) Name() string { return "ws" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{"channel_url": t.cfg.URL}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.cfg.URL == "" {
		return errorsx.Wrap(errors.New("channel url required"), errorsx.ReasonSessionStart)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(t.cfg.HandshakeTimeout) * time.Millisecond,
	}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSessionStart)
	}

	streamID := uuid.NewString()
	traceID := uuid.NewString()
	t.mu.Lock()
	t.conn = conn
	t.sendCh = make(chan []byte, 256)
	t.streamID = streamID
	t.traceID = traceID
	sendCh := t.sendCh
	t.mu.Unlock()

	go t.writeLoop(conn, sendCh)
	go t.readLoop(conn, streamID, traceID)
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	conn := t.conn
	sendCh := t.sendCh
	t.conn = nil
	t.mu.Unlock()
	if sendCh != nil {
		close(sendCh)
	}
	if conn != nil {
		_ = conn.Close()
	}
	close(t.recvCh)
	return nil
}

func (t *Transport) Send(f frames.Frame) error {
	if t.closed.Load() {
		return nil
	}
	if f.Kind() != frames.KindText {
		return nil
	}
	tf := f.(frames.TextFrame)
	msg, err := json.Marshal(Event{Event: "message", Text: tf.Text()})
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	t.mu.Lock()
	sendCh := t.sendCh
	t.mu.Unlock()
	if sendCh == nil {
		return nil
	}
	select {
	case sendCh <- msg:
	default:
	}
	return nil
}

func (t *Transport) writeLoop(conn *websocket.Conn, sendCh <-chan []byte) {
	for msg := range sendCh {
		_ = conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (t *Transport) readLoop(conn *websocket.Conn, streamID, traceID string) {
	meta := map[string]string{
		frames.MetaStreamID: streamID,
		frames.MetaTraceID:  traceID,
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() {
				slog.Info("ws_channel_closed", "stream_id", streamID, "reason_code", string(errorsx.ReasonTransportRecv), "error", err.Error())
				t.push(frames.NewSystemFrame(streamID, time.Now().UnixNano(), "session_end", meta))
			}
			return
		}
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "transcript":
			src := frames.SourceAgent
			if evt.Source == "user" || evt.Source == frames.SourceCaller {
				src = frames.SourceCaller
			}
			m := cloneWith(meta, frames.MetaSource, src)
			t.push(frames.NewTextFrame(streamID, time.Now().UnixNano(), evt.Text, m))
		case "audio":
			m := cloneWith(meta, frames.MetaSource, frames.SourceAgent)
			t.push(frames.NewAudioFrame(streamID, time.Now().UnixNano(), evt.Audio, m))
		case "end":
			m := cloneWith(meta, frames.MetaReason, evt.Reason)
			t.push(frames.NewSystemFrame(streamID, time.Now().UnixNano(), "session_end", m))
			return
		}
	}
}

func (t *Transport) push(f frames.Frame) {
	if t.closed.Load() {
		return
	}
	select {
	case t.recvCh <- f:
	default:
	}
}

func cloneWith(meta map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	if value != "" {
		out[key] = value
	}
	return out
}
