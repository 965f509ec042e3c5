package web

import (
	"net/http"

	"hoststat/internal/netx"
)

// handleInfo serves static host information on GET /info
func (s *Service) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		netx.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}

	info, err := s.info(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to get system info")
		netx.WriteInternalServerError(w, "Failed to get system info", err)
		return
	}

	netx.WriteJSON(w, http.StatusOK, info)
}
