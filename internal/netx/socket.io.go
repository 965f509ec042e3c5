package netx

import (
	"net/http"
	"strings"

	"github.com/zishang520/socket.io/servers/engine/v3"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// SocketPath is the HTTP path the Socket.IO server is mounted on
const SocketPath = "/socket.io/"

// Socket represents a wrapper around the Socket.IO server
type Socket struct {
	sock       *socket.Server
	Namespaces map[string]Namespace
}

// NewSocket creates an initialized Socket.IO server wrapper
func NewSocket() *Socket {
	s := new(Socket)
	s.Initialize()
	return s
}

// Initialize configures and creates the Socket.IO server
func (self *Socket) Initialize() {
	opts := socket.DefaultServerOptions()
	opts.SetPath(strings.TrimSuffix(SocketPath, "/"))
	opts.SetTransports(types.NewSet(
		engine.Polling,
		engine.WebSocket,
	))
	// Clients only send small control events.
	opts.SetMaxHttpBufferSize(1 << 16)
	self.sock = socket.NewServer(nil, opts)
	self.Namespaces = make(map[string]Namespace)
}

// AddNamespace creates a new Socket.IO namespace and adds it to the server
func (self *Socket) AddNamespace(name string) Namespace {
	namespace := Namespace{namespace: self.sock.Of(name, nil)}
	namespace.Initialize()
	self.Namespaces[name] = namespace
	return namespace
}

// GetNamespace returns the desired namespace
func (self *Socket) GetNamespace(name string) (Namespace, bool) {
	ns, ok := self.Namespaces[name]
	return ns, ok
}

// Handler returns an HTTP handler for the Socket.IO server
func (self *Socket) Handler() http.Handler {
	return self.sock.ServeHandler(nil)
}

// Close disconnects all clients and closes the underlying engine
func (self *Socket) Close() {
	self.sock.Close(nil)
}

// Namespace represents a Socket.IO namespace with custom event handling
type Namespace struct {
	namespace socket.Namespace
	events    map[string]func(client *socket.Socket, data ...any)
}

// Initialize sets up the namespace with default event handlers
func (self *Namespace) Initialize() {
	self.events = map[string]func(*socket.Socket, ...any){
		"disconnect": func(client *socket.Socket, reason ...any) {},
	}
}

// AddEvent registers a custom event handler for the namespace
func (self *Namespace) AddEvent(event string, f func(*socket.Socket, ...any)) {
	self.events[event] = f
}

// RegisterEvents activates all the event handlers for new client connections
func (self *Namespace) RegisterEvents() {
	self.namespace.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		for event, f := range self.events {
			client.On(event, func(data ...any) { f(client, data...) })
		}
	})
}

// AddMiddleware adds a middleware to the namespace
func (self *Namespace) AddMiddleware(f func(client *socket.Socket, next func(*socket.ExtendedError))) {
	self.namespace.Use(f)
}

// HandshakeHeader returns the first value of a handshake header, trying the
// canonical and lower-case spellings.
func HandshakeHeader(client *socket.Socket, name string) string {
	headers := client.Handshake().Headers
	for _, key := range []string{http.CanonicalHeaderKey(name), strings.ToLower(name)} {
		if v := firstHeader(headers[key]); v != "" {
			return v
		}
	}
	return ""
}

func firstHeader(v any) string {
	switch h := v.(type) {
	case []string:
		if len(h) > 0 {
			return h[0]
		}
	case string:
		return h
	case []any:
		if len(h) > 0 {
			if s, ok := h[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
