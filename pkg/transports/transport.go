package transports

import (
	"context"

	"github.com/NissanArmada/Produck/pkg/frames"
)

// Transport is the opaque bidirectional event channel between caller and
// agent. Implementations own their network lifecycle; the session layer only
// consumes frames in arrival order.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// ReadyReporter allows transports to expose readiness metadata.
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
