package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *handler) decodeSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return "", false
	}
	sid := strings.TrimSpace(req.SessionID)
	if sid == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sessionId is required")
		return "", false
	}
	return sid, true
}

func (h *handler) handleSessionRegister(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.decodeSession(w, r)
	if !ok {
		return
	}
	if !h.Presence.RegisterOwned(caller(r), sid) {
		writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleSessionUnregister(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.decodeSession(w, r)
	if !ok {
		return
	}
	if _, ok := h.Presence.UnregisterOwned(caller(r), sid); !ok {
		writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleForceOffline(w http.ResponseWriter, r *http.Request) {
	n := h.Presence.ForceOffline(caller(r))
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (h *handler) handleOnlineCount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": h.Presence.OnlineCount()})
}

type onlineResponse struct {
	UserID int64 `json:"userId"`
	Online bool  `json:"online"`
}

func (h *handler) handleIsOnline(w http.ResponseWriter, r *http.Request) {
	uid, ok := parseUserID(chi.URLParam(r, "userId"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "userId must be a positive integer")
		return
	}
	writeJSON(w, http.StatusOK, onlineResponse{UserID: uid, Online: h.Presence.IsOnline(uid)})
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
