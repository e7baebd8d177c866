package events

// Event is a structured record emitted by the market engine after a state
// mutation commits.
type Event interface {
	EventType() string
}

// Emitter forwards events to downstream subscribers such as the RPC layer or
// an audit indexer.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding everything. Components that
// expose events optionally default to it so callers never need nil checks.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
