package server

import (
	"maps"
	"slices"
	"sync"

	"golang.org/x/net/http/httpguts"
)

// Protocols maps WebSocket subprotocol names to their handlers. Names are
// matched exactly, including case. A connection keeps the handler it was
// upgraded with even if the name is registered again later.
type Protocols struct {
	mu       sync.RWMutex
	handlers map[string]ProtocolHandler
}

// NewProtocols returns an empty registry.
func NewProtocols() *Protocols {
	return &Protocols{handlers: make(map[string]ProtocolHandler)}
}

// Register binds name to h, replacing any previous binding. The name must
// be a valid HTTP token (RFC 6455, section 4.1).
func (p *Protocols) Register(name string, h ProtocolHandler) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return ErrInvalidProtocol
	}
	if h == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	p.handlers[name] = h
	p.mu.Unlock()
	return nil
}

// Lookup returns the handler bound to name.
func (p *Protocols) Lookup(name string) (ProtocolHandler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h, ok := p.handlers[name]
	return h, ok
}

// Has reports whether name is registered.
func (p *Protocols) Has(name string) bool {
	_, ok := p.Lookup(name)
	return ok
}

// Names returns the registered names in sorted order.
func (p *Protocols) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Sorted(maps.Keys(p.handlers))
}
