package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/finadvisor/internal/brain"
	"github.com/wonny/finadvisor/internal/statecodec"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StageFrame is one websocket message per completed stage
type StageFrame struct {
	RunID       string          `json:"run_id"`
	Stage       string          `json:"stage"`
	DisplayName string          `json:"display_name"`
	Response    string          `json:"response"`
	State       json.RawMessage `json:"state,omitempty"`
}

// EndFrame closes the stream
type EndFrame struct {
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// Stream runs the pipeline for a session and pushes one frame per stage
// GET /api/conversations/{id}/stream?augment=true
func (h *ConversationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	augment := h.defaultRAG
	if v := r.URL.Query().Get("augment"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid augment flag")
			return
		}
		augment = parsed
	}

	session, profile, err := h.svc.Resume(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err, "Failed to load session")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithField("session_id", sessionID)

	// 클라이언트가 끊으면 파이프라인도 중단
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go readPump(conn, cancel)
	stopPing := startPing(conn)
	defer stopPing()

	for update, err := range h.svc.Stream(ctx, session, profile, augment) {
		if err != nil {
			log.WithError(err).Warn("Conversation stream ended with error")
			writeFrame(conn, EndFrame{Error: err.Error()})
			return
		}
		if err := writeFrame(conn, stageFrame(update)); err != nil {
			log.WithError(err).Warn("Failed to write stage frame")
			return
		}
	}

	writeFrame(conn, EndFrame{Done: true})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func stageFrame(u brain.Update) StageFrame {
	frame := StageFrame{
		RunID:       u.RunID,
		Stage:       u.Stage.String(),
		DisplayName: u.Stage.DisplayName(),
	}
	if u.State != nil {
		frame.Response = u.State.Result(u.Stage)
		if encoded, err := statecodec.Encode(u.State); err == nil {
			frame.State = json.RawMessage(encoded)
		}
	}
	return frame
}

func writeFrame(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// readPump drains client frames so pongs and close are processed
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func startPing(conn *websocket.Conn) func() {
	ticker := time.NewTicker(pingPeriod)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
