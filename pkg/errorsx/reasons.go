package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonValidationRequest   ReasonCode = "validation_request"
	ReasonValidationDecode    ReasonCode = "validation_decode"
	ReasonValidationRateLimit ReasonCode = "validation_rate_limit"
	ReasonValidationCooldown  ReasonCode = "validation_cooldown"

	ReasonSessionStart  ReasonCode = "session_start"
	ReasonTransportRecv ReasonCode = "transport_recv"
	ReasonTransportSend ReasonCode = "transport_send"

	ReasonCooldownStore ReasonCode = "cooldown_store"
)
