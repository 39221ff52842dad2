package hub

import (
	"sync"

	"github.com/Telesphore-Uwabera/EcoRwanda-Conservation-Portal-sub001/internal/frame"
	"go.uber.org/zap"
)

// Registry tracks the live connection for each identity and exposes the two
// dispatch primitives the rest of the backend consumes. Delivery is
// best-effort: a frame is sent only if the target is reachable at send time,
// with no retry, persistence or confirmation.
type Registry interface {
	Register(connection *Connection)
	Unregister(connection *Connection)
	Notify(identity string, payload any)
	Broadcast(message string)
}

type InMemoryRegistry struct {
	logger *zap.Logger

	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewInMemoryRegistry(logger *zap.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:      logger,
		connections: make(map[string]*Connection),
	}
}

// Register opens the connection and makes it the live entry for its
// identity. A previous entry for the same identity is replaced, not closed:
// its own close event settles it through Unregister later.
func (r *InMemoryRegistry) Register(connection *Connection) {
	connection.open()

	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.connections[connection.Identity()]; ok {
		r.logger.Info("replacing live connection",
			zap.String("identity", connection.Identity()),
			zap.String("previousConnectionId", previous.Id()),
			zap.String("connectionId", connection.Id()))
	}

	r.connections[connection.Identity()] = connection
}

// Unregister settles a closed connection. The map entry is removed only if
// it still points at this exact connection, so a close event from a stale
// channel never evicts a newer connection created by a reconnect.
func (r *InMemoryRegistry) Unregister(connection *Connection) {
	r.mu.Lock()

	current, ok := r.connections[connection.Identity()]
	if ok && current.Id() == connection.Id() {
		delete(r.connections, connection.Identity())
	}

	r.mu.Unlock()

	connection.close()
}

func (r *InMemoryRegistry) Notify(identity string, payload any) {
	r.mu.RLock()
	connection, ok := r.connections[identity]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("notification target not connected",
			zap.String("identity", identity))

		return
	}

	if !connection.Enqueue(frame.NewNotification(payload)) {
		r.logger.Warn("dropping notification",
			zap.String("identity", identity),
			zap.String("connectionId", connection.Id()))
	}
}

func (r *InMemoryRegistry) Broadcast(message string) {
	r.mu.RLock()
	connections := make([]*Connection, 0, len(r.connections))
	for _, connection := range r.connections {
		connections = append(connections, connection)
	}
	r.mu.RUnlock()

	f := frame.NewSystem(message)

	for _, connection := range connections {
		if !connection.Enqueue(f) {
			r.logger.Warn("dropping broadcast frame",
				zap.String("identity", connection.Identity()),
				zap.String("connectionId", connection.Id()))
		}
	}
}
