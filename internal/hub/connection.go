package hub

import (
	"sync"

	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/frame"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type State string

const (
	StateAuthenticating State = "authenticating"
	StateOpen           State = "open"
	StateClosed         State = "closed"
)

// Connection is one live, authenticated channel tied to exactly one
// identity. Outbound frames are queued on a buffered channel drained by the
// transport's writer; queuing is non-blocking so a slow peer never stalls a
// dispatching caller.
type Connection struct {
	id       string
	identity string
	send     chan frame.Frame

	mu    sync.RWMutex
	state State
}

func NewConnection(identity string, sendBuffer int) *Connection {
	return &Connection{
		id:       gonanoid.Must(),
		identity: identity,
		send:     make(chan frame.Frame, sendBuffer),
		state:    StateAuthenticating,
	}
}

func (c *Connection) Id() string {
	return c.id
}

func (c *Connection) Identity() string {
	return c.identity
}

// Frames is the outbound queue; it is closed when the connection closes.
func (c *Connection) Frames() <-chan frame.Frame {
	return c.send
}

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Enqueue queues a frame for delivery. It reports false when the connection
// is not open or the buffer is full; the frame is dropped in both cases.
func (c *Connection) Enqueue(f frame.Frame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateOpen {
		return false
	}

	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Connection) open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAuthenticating {
		c.state = StateOpen
	}
}

// close transitions to closed and closes the outbound queue. Idempotent;
// Enqueue observes the closed state under the same lock, so no send can
// race the channel close.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}

	c.state = StateClosed
	close(c.send)
}
