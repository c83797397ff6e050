package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"dualstore/internal/upload"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	if setter, ok := w.(errorCodeSetter); ok {
		setter.setErrorCode(code)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusForKind maps an upload error kind to its HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case upload.KindNoFile, upload.KindMultipart:
		return http.StatusBadRequest
	case upload.KindSizeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeUploadError reports err to the client. Client errors carry the error
// text; server errors get a generic message and the detail is only logged.
func writeUploadError(w http.ResponseWriter, err error) {
	kind := upload.Kind(err)
	status := statusForKind(kind)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("Upload error", "kind", kind, "err", err)
		message = genericMessage(kind)
	}

	writeError(w, status, kind, message)
}

func genericMessage(kind string) string {
	switch kind {
	case upload.KindObjectStore:
		return "Failed to store file in object storage"
	case upload.KindContentStore:
		return "Failed to store file in content-addressed storage"
	case upload.KindIO:
		return "Failed to stage uploaded file"
	case upload.KindUpload:
		return "Upload processing failed"
	default:
		return "We encountered an internal error. Please try again."
	}
}
