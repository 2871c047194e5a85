package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"petlink/cmd/internal/blob"
	"petlink/cmd/internal/fileops"
	"petlink/cmd/internal/operations"

	"github.com/go-chi/chi/v5"
)

const multipartMemory = 8 << 20

type startResponse struct {
	TrackingID string `json:"trackingId"`
	Status     string `json:"status"`
}

type pollResponse struct {
	Status        operations.Status `json:"status"`
	ElapsedTimeMs int64             `json:"elapsedTimeMs"`
	Result        any               `json:"result,omitempty"`
	Error         string            `json:"error,omitempty"`
}

type blobRequest struct {
	Category string `json:"category"`
	Filename string `json:"filename"`
}

func pollHandler[T any](poll func(id string) operations.Poll[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := poll(chi.URLParam(r, "trackingId"))

		resp := pollResponse{Status: p.Status, ElapsedTimeMs: p.Elapsed.Milliseconds(), Error: p.Err}
		switch p.Status {
		case operations.StatusNotFound:
			writeJSON(w, http.StatusNotFound, resp)
			return
		case operations.StatusCompleted:
			resp.Result = p.Value
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeStarted(w http.ResponseWriter, id string, err error) {
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{TrackingID: id, Status: "processing"})
}

func (h *handler) handleStartStore(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "category is required")
		return
	}

	fh := firstFile(r.MultipartForm, "file")
	if fh == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file is required")
		return
	}
	up, err := readUpload(fh)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := h.Files.StartStore(category, up)
	writeStarted(w, id, err)
}

func (h *handler) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "category is required")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "files are required")
		return
	}
	uploads := make([]fileops.Upload, 0, len(files))
	for _, fh := range files {
		up, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		uploads = append(uploads, up)
	}

	id, err := h.Files.StartBatchStore(category, uploads)
	writeStarted(w, id, err)
}

func (h *handler) handleStartLoad(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBlobRequest(w, r)
	if !ok {
		return
	}
	id, err := h.Files.StartLoad(req.Category, req.Filename)
	writeStarted(w, id, err)
}

func (h *handler) handleStartDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBlobRequest(w, r)
	if !ok {
		return
	}
	id, err := h.Files.StartDelete(req.Category, req.Filename)
	writeStarted(w, id, err)
}

func (h *handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown operation kind")
		return
	}
	if !h.Files.Cancel(kind, chi.URLParam(r, "trackingId")) {
		writeError(w, http.StatusConflict, "not_cancellable", "operation is unknown or already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *handler) handleServeBlob(w http.ResponseWriter, r *http.Request) {
	category, filename := chi.URLParam(r, "category"), chi.URLParam(r, "filename")

	data, err := h.Blobs.Load(r.Context(), category, filename)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	case errors.Is(err, blob.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		h.Log.Error("api.blob.load.fail", "category", category, "filename", filename, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load file")
		return
	}

	w.Header().Set("Content-Type", blob.ContentType(filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart body")
		return false
	}
	return true
}

func decodeBlobRequest(w http.ResponseWriter, r *http.Request) (blobRequest, bool) {
	var req blobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return req, false
	}
	req.Category = strings.TrimSpace(req.Category)
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Category == "" || req.Filename == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "category and filename are required")
		return req, false
	}
	return req, true
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil || len(form.File[field]) == 0 {
		return nil
	}
	return form.File[field][0]
}

func readUpload(fh *multipart.FileHeader) (fileops.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return fileops.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fileops.Upload{}, err
	}
	return fileops.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func parseKind(s string) (operations.Kind, bool) {
	switch s {
	case "store":
		return operations.KindStore, true
	case "load":
		return operations.KindLoad, true
	case "delete":
		return operations.KindDelete, true
	case "batch", "batch-store":
		return operations.KindBatchStore, true
	default:
		return "", false
	}
}
