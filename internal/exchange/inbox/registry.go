package inbox

import "context"

// HandlerFunc processes one inbound message. Handlers must be idempotent
// given the inbox's dedup guarantee and report failure through the
// returned error.
type HandlerFunc func(ctx context.Context, msg Message) error

type handlerKey struct {
	DocumentType    string
	BusinessProcess string
}

// Registry maps (document type, business process) to domain handlers.
// Registration happens during startup; lookups are read-only afterwards.
type Registry struct {
	handlers map[handlerKey]HandlerFunc
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[handlerKey]HandlerFunc)}
}

// Register wires a handler for a document type within a business process.
func (r *Registry) Register(documentType, businessProcess string, handler HandlerFunc) {
	if handler == nil {
		return
	}
	r.handlers[handlerKey{documentType, businessProcess}] = handler
}

// Lookup returns the handler for the key, if registered.
func (r *Registry) Lookup(documentType, businessProcess string) (HandlerFunc, bool) {
	h, ok := r.handlers[handlerKey{documentType, businessProcess}]
	return h, ok
}
