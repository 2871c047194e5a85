// Package api is PetLink's REST surface: asynchronous file operations,
// presence sessions and direct messages.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"petlink/cmd/internal/fileops"
	"petlink/cmd/internal/messaging"
	"petlink/cmd/internal/presence"

	"github.com/go-chi/chi/v5"
)

const defaultMaxUploadBytes = 10 << 20

// BlobReader serves stored blobs at their public URL.
type BlobReader interface {
	Load(ctx context.Context, category, filename string) ([]byte, error)
}

// Deps are the services behind the routes. Auth nil means development mode.
type Deps struct {
	Log      *slog.Logger
	Auth     Authenticator
	Files    *fileops.Service
	Blobs    BlobReader
	Presence *presence.Registry
	Messages *messaging.Service

	PublicBasePath string
	MaxUploadBytes int64
}

type handler struct {
	Deps
}

// NewHandler builds the REST router.
func NewHandler(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	deps.PublicBasePath = "/" + strings.Trim(path.Clean("/"+deps.PublicBasePath), "/")
	if deps.PublicBasePath == "/" {
		deps.PublicBasePath = "/server"
	}

	h := &handler{Deps: deps}

	r := chi.NewRouter()
	if h.Blobs != nil {
		r.Get(h.PublicBasePath+"/{category}/{filename}", h.handleServeBlob)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUser(h.Auth))

		if h.Files != nil {
			r.Post("/files", h.handleStartStore)
			r.Get("/files/store/{trackingId}", pollHandler(h.Files.PollStore))
			r.Post("/files/load", h.handleStartLoad)
			r.Get("/files/load/{trackingId}", pollHandler(h.Files.PollLoad))
			r.Post("/files/delete", h.handleStartDelete)
			r.Get("/files/delete/{trackingId}", pollHandler(h.Files.PollDelete))
			r.Post("/files/batch", h.handleStartBatch)
			r.Get("/files/batch/{trackingId}", pollHandler(h.Files.PollBatch))
			r.Delete("/files/{kind}/{trackingId}", h.handleCancel)
		}

		if h.Presence != nil {
			r.Post("/sessions/register", h.handleSessionRegister)
			r.Post("/sessions/unregister", h.handleSessionUnregister)
			r.Post("/sessions/force-offline", h.handleForceOffline)
			r.Get("/presence/count", h.handleOnlineCount)
			r.Get("/presence/{userId}", h.handleIsOnline)
		}

		if h.Messages != nil {
			r.Post("/messages", h.handleSend)
			r.Post("/messages/typing", h.handleTyping)
			r.Post("/messages/read", h.handleMarkRead)
			r.Get("/messages/unread-count", h.handleUnreadCount)
			r.Get("/messages/conversations", h.handleConversations)
			r.Get("/messages/conversation/{otherUserId}", h.handleConversation)
		}
	})

	return r
}

// caller returns the authenticated user. Routes behind requireUser always have one.
func caller(r *http.Request) int64 {
	id, _ := UserID(r.Context())
	return id
}
