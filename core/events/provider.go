package events

const (
	// KindProviderError identifies a semantic error reported by the provider.
	KindProviderError Kind = "provider.error"
	// KindOther identifies an inbound message type the adapter does not model.
	KindOther Kind = "provider.other"
)

// ProviderError carries a wire-level "error" event. Not automatically fatal;
// the engine surfaces it and keeps the session alive unless the transport
// also fails.
type ProviderError struct {
	Base
	Code    string
	Message string
}

// NewProviderError creates a provider error event.
func NewProviderError(code, message string) ProviderError {
	return ProviderError{Base: NewBase(KindProviderError), Code: code, Message: message}
}

// Other wraps an unrecognized inbound message type. Kept for forward
// compatibility; the engine ignores it.
type Other struct {
	Base
	WireType string
}

// NewOther creates an event for an unmodeled wire message.
func NewOther(wireType string) Other {
	return Other{Base: NewBase(KindOther), WireType: wireType}
}
