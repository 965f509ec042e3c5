package auth

import (
	"net/http"

	"github.com/spf13/cast"
	"github.com/zishang520/socket.io/servers/socket/v3"

	"hoststat/internal/netx"
)

// Realm is sent in the basic auth challenge
const Realm = "hoststat"

// RequireAuth is a middleware that checks basic auth credentials on every
// route. It is a no-op when no users are configured.
func RequireAuth(users Users, next http.Handler) http.Handler {
	if !users.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, password, ok := r.BasicAuth()
		if !ok || !users.VerifyPassword(name, password) {
			netx.WriteUnauthorized(w, Realm)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthSocketIO returns a namespace middleware that checks the
// handshake Authorization header or the client auth payload.
func RequireAuthSocketIO(users Users) func(*socket.Socket, func(*socket.ExtendedError)) {
	return func(client *socket.Socket, next func(*socket.ExtendedError)) {
		if !users.Enabled() || authorizeHandshake(users, netx.HandshakeHeader(client, "Authorization"), client.Handshake().Auth) {
			next(nil)
			return
		}
		next(socket.NewExtendedError("Unauthorized", ""))
	}
}

// authorizeHandshake accepts either a basic Authorization header or an auth
// payload of the form {"username": ..., "password": ...}.
func authorizeHandshake(users Users, header string, payload any) bool {
	if header != "" {
		r := http.Request{Header: http.Header{"Authorization": {header}}}
		if name, password, ok := r.BasicAuth(); ok {
			return users.VerifyPassword(name, password)
		}
	}

	fields, err := cast.ToStringMapStringE(payload)
	if err != nil || fields["username"] == "" {
		return false
	}
	return users.VerifyPassword(fields["username"], fields["password"])
}
