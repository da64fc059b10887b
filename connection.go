package displayloop

import (
	"github.com/eapache/queue"
)

// Connection owns the transport on behalf of the loop goroutine. It is not
// safe for concurrent use.
type Connection struct {
	transport Transport
	// pending holds events pulled out of order, dispatched before polling
	pending       *queue.Queue
	caps          Capabilities
	lastTimestamp uint32
	closed        bool
}

func newConnection(transport Transport, disablePresentation bool) *Connection {
	c := &Connection{
		transport: transport,
		pending:   queue.New(),
		caps:      transport.Capabilities(),
	}
	if disablePresentation {
		c.caps.Presentation = false
	}
	return c
}

// Transport returns the underlying transport.
func (c *Connection) Transport() Transport {
	return c.transport
}

// Capabilities returns the currently enabled capabilities.
func (c *Connection) Capabilities() Capabilities {
	return c.caps
}

// LastTimestamp returns the newest server timestamp seen, used to stamp
// requests such as selection ownership claims. Zero means CurrentTime.
func (c *Connection) LastTimestamp() uint32 {
	return c.lastTimestamp
}

// Push queues an event to be dispatched before anything else is polled.
// Collaborators use it to return events they consumed while waiting for a
// specific reply.
func (c *Connection) Push(ev Event) {
	if ev != nil {
		c.pending.Add(ev)
	}
}

// Pending returns the number of pushed events not yet dispatched.
func (c *Connection) Pending() int {
	return c.pending.Length()
}

// next pops a pushed event, falling back to the transport.
func (c *Connection) next() (Event, error) {
	if c.pending.Length() > 0 {
		return c.pending.Remove().(Event), nil
	}
	if c.closed {
		return nil, ErrTransportClosed
	}
	return c.transport.PollEvent()
}

func (c *Connection) observe(ev Event) {
	if ts, ok := timestampOf(ev); ok {
		c.lastTimestamp = ts
	}
}

func (c *Connection) downgrade(capability Capability) bool {
	return c.caps.disable(capability)
}

func (c *Connection) flush() error {
	if c.closed {
		return ErrTransportClosed
	}
	return c.transport.Flush()
}

func (c *Connection) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.transport.Close()
}
