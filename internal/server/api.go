package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"dualstore/internal/upload"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize())

	mr, err := r.MultipartReader()
	if err != nil {
		writeUploadError(w, &upload.MultipartError{Err: err})
		return
	}

	resp, err := s.cfg.Service.Upload(r.Context(), mr)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotFound, "not_found", "Upload history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	entries, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list uploads", "err", err)
		writeError(w, http.StatusInternalServerError, upload.KindInternal, "Failed to list uploads")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"uploads": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
