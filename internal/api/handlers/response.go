package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/conversation"
)

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps service errors to status codes
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, conversation.ErrMissingField):
		respondError(w, http.StatusBadRequest, fieldMessage(err))
	case errors.Is(err, contracts.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, conversation.ErrSessionCompleted):
		respondError(w, http.StatusConflict, "Session already completed")
	case errors.Is(err, contracts.ErrInvalidProfile):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

// fieldMessage returns the user-facing part of an ErrMissingField error
func fieldMessage(err error) string {
	return strings.TrimPrefix(err.Error(), conversation.ErrMissingField.Error()+": ")
}

// pathID parses a positive integer path variable
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
