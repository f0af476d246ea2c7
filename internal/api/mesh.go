package api

import (
	"net/http"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/mesh"
)

// handleMeshHistory returns relayed mesh messages, newest first.
//
// GET /api/mesh/history?type=X&limit=N
func (s *Server) handleMeshHistory(w http.ResponseWriter, r *http.Request) {
	messageType := r.URL.Query().Get("type")
	limit := queryInt(r, "limit", 0)

	messages, err := s.relay.History(r.Context(), messageType, limit)
	if err != nil {
		s.logger.Error("querying mesh history", "error", err)
		writeInternalError(w, "failed to query mesh history")
		return
	}
	if messages == nil {
		messages = []mesh.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}
