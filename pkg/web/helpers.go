package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error encoding response to JSON", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	RespondJSON(w, logger, status, map[string]string{"error": message})
}

// ParseID extracts and validates the numeric ID from the request path.
// Returns the ID and a boolean indicating success.
func ParseID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	pathValueID := r.PathValue("id")
	id, err := strconv.ParseInt(pathValueID, 10, 64)
	if err != nil || id <= 0 {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid ID: %s", pathValueID))
		return 0, false
	}
	return id, true
}

// ParseVersion extracts the version query parameter used for optimistic
// concurrency checks. Returns the version and a boolean indicating success.
func ParseVersion(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int32, bool) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		RespondError(w, logger, http.StatusBadRequest, "version query parameter is required")
		return 0, false
	}
	version, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || version < 1 {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid version: %s", raw))
		return 0, false
	}
	return int32(version), true
}
