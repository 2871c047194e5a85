package api

import (
	"errors"
	"net/http"

	"petlink/cmd/internal/messaging"

	"github.com/go-chi/chi/v5"
)

type sendRequest struct {
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
}

type typingRequest struct {
	ReceiverID int64 `json:"receiverId"`
	IsTyping   bool  `json:"isTyping"`
}

type readRequest struct {
	OtherUserID int64 `json:"otherUserId"`
}

func (h *handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	msg, err := h.Messages.Send(r.Context(), caller(r), req.ReceiverID, req.Content)
	if err != nil {
		h.writeMessagingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"messageId": msg.ID})
}

func (h *handler) handleTyping(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	if err := h.Messages.Typing(r.Context(), caller(r), req.ReceiverID, req.IsTyping); err != nil {
		h.writeMessagingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	n, err := h.Messages.MarkRead(r.Context(), caller(r), req.OtherUserID)
	if err != nil {
		h.writeMessagingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

func (h *handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Messages.UnreadCount(r.Context(), caller(r))
	if err != nil {
		h.writeMessagingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	other, ok := parseUserID(chi.URLParam(r, "otherUserId"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "otherUserId must be a positive integer")
		return
	}
	msgs, err := h.Messages.Conversation(r.Context(), caller(r), other)
	if err != nil {
		h.writeMessagingError(w, err)
		return
	}
	if msgs == nil {
		msgs = []messaging.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.Messages.Conversations(r.Context(), caller(r))
	if err != nil {
		h.writeMessagingError(w, err)
		return
	}
	if convs == nil {
		convs = []messaging.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *handler) writeMessagingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, messaging.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, messaging.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	default:
		h.Log.Error("api.messaging.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
