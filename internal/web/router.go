package web

import (
	"net/http"

	"github.com/rs/zerolog"

	"hoststat/internal/auth"
	"hoststat/internal/logging"
	"hoststat/internal/netx"
)

// NewHandler builds the server's root handler. stream may be nil when the
// snapshot stream is disabled.
func NewHandler(svc *Service, stream *netx.Socket, users auth.Users, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	svc.Routes(mux)
	if stream != nil {
		mux.Handle(netx.SocketPath, stream.Handler())
	}
	return logging.AccessLog(logger, auth.RequireAuth(users, mux))
}
