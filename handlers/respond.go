package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/CrowderSoup/planner/tasks"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeError maps err onto a status code and a JSON error body. Unclassified
// errors are logged and reported as 500 without their details.
func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	var te *tasks.Error
	if errors.As(err, &te) && te.Msg != "" {
		msg = te.Msg
	}
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusOf(err error) int {
	switch tasks.KindOf(err) {
	case tasks.Unauthorized:
		return http.StatusUnauthorized
	case tasks.NotFound:
		return http.StatusNotFound
	case tasks.ValidationFailed:
		return http.StatusBadRequest
	case tasks.TransientFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
