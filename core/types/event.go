package types

// Event is the generic representation of a state change surfaced to RPC
// consumers and indexers. Typed events in core/events convert themselves into
// this shape for transport.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
