package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/wonny/finadvisor/internal/brain"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/logger"
)

// ConversationService is what the conversation endpoints need
type ConversationService interface {
	Start(ctx context.Context, name, topic string) (*contracts.Session, contracts.ChatProfile, error)
	Resume(ctx context.Context, sessionID int64) (*contracts.Session, contracts.ChatProfile, error)
	Stream(ctx context.Context, session *contracts.Session, profile contracts.ChatProfile, augment bool) iter.Seq2[brain.Update, error]
	History(ctx context.Context, userID int64) ([]contracts.Session, error)
	Detail(ctx context.Context, sessionID int64) (*contracts.PipelineState, error)
	Delete(ctx context.Context, sessionID int64) (bool, error)
	SaveUser(ctx context.Context, name string, capital int64, riskLevel int) (*contracts.User, error)
	LoadUser(ctx context.Context, name string) (*contracts.User, error)
}

// ConversationHandler handles conversation and history endpoints
// ⭐ SSOT: 대화 API 핸들러는 여기서만
type ConversationHandler struct {
	svc        ConversationService
	defaultRAG bool
	logger     *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
// defaultRAG applies when a request does not say whether to augment.
func NewConversationHandler(svc ConversationService, defaultRAG bool, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		svc:        svc,
		defaultRAG: defaultRAG,
		logger:     log,
	}
}

// StartRequest opens a conversation
type StartRequest struct {
	Name    string `json:"name"`
	Topic   string `json:"topic"`
	Augment *bool  `json:"augment,omitempty"`
}

// StartResponse describes the opened session
type StartResponse struct {
	Session   *contracts.Session    `json:"session"`
	Profile   contracts.ChatProfile `json:"profile"`
	StreamURL string                `json:"stream_url"`
}

// Start opens a session for a stored user
// POST /api/conversations
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, profile, err := h.svc.Start(r.Context(), req.Name, req.Topic)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to start conversation")
		respondServiceError(w, err, "Failed to start conversation")
		return
	}

	augment := h.defaultRAG
	if req.Augment != nil {
		augment = *req.Augment
	}

	respondJSON(w, http.StatusCreated, StartResponse{
		Session:   session,
		Profile:   profile,
		StreamURL: fmt.Sprintf("/api/conversations/%d/stream?augment=%t", session.ID, augment),
	})
}

// History lists a user's sessions
// GET /api/users/{id}/sessions
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	sessions, err := h.svc.History(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list sessions")
		respondServiceError(w, err, "Failed to retrieve history")
		return
	}
	if sessions == nil {
		sessions = []contracts.Session{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Detail returns the decoded final state of a session
// GET /api/sessions/{id}
func (h *ConversationHandler) Detail(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	st, err := h.svc.Detail(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err, "Failed to retrieve session")
		return
	}

	respondJSON(w, http.StatusOK, st)
}

// Delete removes a session and its detail
// DELETE /api/sessions/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	deleted, err := h.svc.Delete(r.Context(), sessionID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to delete session")
		respondServiceError(w, err, "Failed to delete session")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SaveUserRequest creates or updates a user
type SaveUserRequest struct {
	Name      string `json:"name"`
	Capital   int64  `json:"capital"`
	RiskLevel int    `json:"risk_level"`
}

// SaveUser creates a new user or updates capital and risk of an existing one
// POST /api/users
func (h *ConversationHandler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req SaveUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.svc.SaveUser(r.Context(), req.Name, req.Capital, req.RiskLevel)
	if err != nil {
		respondServiceError(w, err, "Failed to save user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// LoadUser looks a user up by name
// GET /api/users?name=
func (h *ConversationHandler) LoadUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.LoadUser(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}
