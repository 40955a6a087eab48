package transport

import "sync"

// Callbacks holds the receive-side handlers of a Transport. Implementations
// embed it to satisfy the On* half of the interface. The zero value is ready
// to use and safe for concurrent use.
type Callbacks struct {
	mu          sync.RWMutex
	onMove      func(MoveMessage)
	onName      func(string)
	onCharacter func(string)
	onPeer      func(PeerEvent)
}

// OnMove registers fn as the move handler, replacing any previous one.
func (c *Callbacks) OnMove(fn func(MoveMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMove = fn
}

// OnName registers fn as the name handler.
func (c *Callbacks) OnName(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onName = fn
}

// OnCharacter registers fn as the character-selection handler.
func (c *Callbacks) OnCharacter(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCharacter = fn
}

// OnPeer registers fn as the presence handler.
func (c *Callbacks) OnPeer(fn func(PeerEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPeer = fn
}

// EmitMove invokes the move handler, if any, outside the lock.
func (c *Callbacks) EmitMove(m MoveMessage) {
	c.mu.RLock()
	fn := c.onMove
	c.mu.RUnlock()
	if fn != nil {
		fn(m)
	}
}

// EmitName invokes the name handler, if any.
func (c *Callbacks) EmitName(name string) {
	c.mu.RLock()
	fn := c.onName
	c.mu.RUnlock()
	if fn != nil {
		fn(name)
	}
}

// EmitCharacter invokes the character handler, if any.
func (c *Callbacks) EmitCharacter(slug string) {
	c.mu.RLock()
	fn := c.onCharacter
	c.mu.RUnlock()
	if fn != nil {
		fn(slug)
	}
}

// EmitPeer invokes the presence handler, if any.
func (c *Callbacks) EmitPeer(e PeerEvent) {
	c.mu.RLock()
	fn := c.onPeer
	c.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

// Release drops every registered handler.
//
// Postcondition: subsequent Emit calls are no-ops until handlers are registered again.
func (c *Callbacks) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMove = nil
	c.onName = nil
	c.onCharacter = nil
	c.onPeer = nil
}
