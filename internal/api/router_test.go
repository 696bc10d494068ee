package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/finadvisor/internal/api/handlers"
	"github.com/wonny/finadvisor/internal/brain"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/conversation"
	"github.com/wonny/finadvisor/internal/metrics"
	"github.com/wonny/finadvisor/internal/rerank"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

type fakeService struct {
	streamErr  error
	gotAugment atomic.Bool
	deleted    atomic.Bool
}

func (f *fakeService) Start(_ context.Context, name, topic string) (*contracts.Session, contracts.ChatProfile, error) {
	if name == "" {
		return nil, contracts.ChatProfile{}, fmt.Errorf("%w: %s", conversation.ErrMissingField, conversation.MsgMissingUser)
	}
	return &contracts.Session{ID: 7, UserID: 1, Capital: 1000, RiskLevel: 3, Topic: topic},
		contracts.ChatProfile{Topic: topic, UserName: name, Capital: 1000, RiskLevel: 3}, nil
}

func (f *fakeService) Resume(_ context.Context, id int64) (*contracts.Session, contracts.ChatProfile, error) {
	switch id {
	case 7:
	case 8:
		return nil, contracts.ChatProfile{}, fmt.Errorf("session 8: %w", conversation.ErrSessionCompleted)
	default:
		return nil, contracts.ChatProfile{}, contracts.ErrNotFound
	}
	return &contracts.Session{ID: 7}, contracts.ChatProfile{Topic: "반도체", Capital: 1000, RiskLevel: 3}, nil
}

func (f *fakeService) Stream(_ context.Context, _ *contracts.Session, profile contracts.ChatProfile, augment bool) iter.Seq2[brain.Update, error] {
	f.gotAugment.Store(augment)
	return func(yield func(brain.Update, error) bool) {
		st := contracts.NewPipelineState(profile)
		for _, stage := range contracts.AllStages()[:2] {
			st.CurrentStage = stage
			_ = st.SetResult(stage, stage.String()+" 결과")
			if !yield(brain.Update{RunID: "run-1", Stage: stage, State: st.Clone()}, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield(brain.Update{Stage: contracts.StageAnalysis}, f.streamErr)
		}
	}
}

func (f *fakeService) History(_ context.Context, userID int64) ([]contracts.Session, error) {
	if userID == 2 {
		return nil, nil
	}
	return []contracts.Session{{ID: 7, UserID: userID, Topic: "반도체"}}, nil
}

func (f *fakeService) Detail(_ context.Context, id int64) (*contracts.PipelineState, error) {
	if id != 7 {
		return nil, contracts.ErrNotFound
	}
	st := contracts.NewPipelineState(contracts.ChatProfile{Topic: "반도체"})
	st.PortfolioResponse = "배분표"
	return st, nil
}

func (f *fakeService) Delete(_ context.Context, id int64) (bool, error) {
	f.deleted.Store(id == 7)
	return id == 7, nil
}

func (f *fakeService) SaveUser(_ context.Context, name string, capital int64, risk int) (*contracts.User, error) {
	if capital <= 0 {
		return nil, fmt.Errorf("%w: %s", conversation.ErrMissingField, conversation.MsgMissingUser)
	}
	return &contracts.User{ID: 1, Name: name, Capital: capital, RiskLevel: risk}, nil
}

func (f *fakeService) LoadUser(_ context.Context, name string) (*contracts.User, error) {
	if name != "kim" {
		return nil, contracts.ErrNotFound
	}
	return &contracts.User{ID: 1, Name: "kim"}, nil
}

func newTestServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	log := logger.Nop()
	m := metrics.New()
	ranker := rerank.New(nil, config.CrossEncoderConfig{ModelName: "m", RelevanceThreshold: 0.8, MaxDocuments: 15, RerankTopK: 5}, log, m)

	router := NewRouter(Handlers{
		Conversation: handlers.NewConversationHandler(svc, true, log),
		Rerank:       handlers.NewRerankHandler(ranker),
		Metrics:      m.Handler(),
	}, log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRouter_RESTEndpoints(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "health", method: "GET", path: "/health", wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) { assert.Equal(t, "ok", body["status"]) },
		},
		{
			name: "start conversation", method: "POST", path: "/api/conversations",
			body: `{"name":"kim","topic":"반도체","augment":false}`, wantStatus: http.StatusCreated,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "/api/conversations/7/stream?augment=false", body["stream_url"])
			},
		},
		{
			name: "start without user", method: "POST", path: "/api/conversations",
			body: `{"topic":"반도체"}`, wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, conversation.MsgMissingUser, body["error"])
			},
		},
		{
			name: "bad body", method: "POST", path: "/api/conversations", body: `{`, wantStatus: http.StatusBadRequest,
		},
		{
			name: "history", method: "GET", path: "/api/users/1/sessions", wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) { assert.EqualValues(t, 1, body["count"]) },
		},
		{
			name: "empty history", method: "GET", path: "/api/users/2/sessions", wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) { assert.Equal(t, []interface{}{}, body["sessions"]) },
		},
		{
			name: "detail", method: "GET", path: "/api/sessions/7", wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) { assert.Equal(t, "배분표", body["portfolio_response"]) },
		},
		{
			name: "detail missing", method: "GET", path: "/api/sessions/8", wantStatus: http.StatusNotFound,
		},
		{
			name: "save user", method: "POST", path: "/api/users",
			body: `{"name":"kim","capital":1000,"risk_level":3}`, wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) { assert.Equal(t, "kim", body["name"]) },
		},
		{
			name: "save user invalid", method: "POST", path: "/api/users",
			body: `{"name":"kim","capital":0,"risk_level":3}`, wantStatus: http.StatusBadRequest,
		},
		{
			name: "load user", method: "GET", path: "/api/users?name=kim", wantStatus: http.StatusOK,
		},
		{
			name: "rerank info", method: "GET", path: "/api/rerank/info", wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "m", body["model_name"])
				assert.Equal(t, false, body["is_available"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeBody(t, resp)
			if tt.check != nil {
				tt.check(t, body)
			}
		})
	}
}

func TestRouter_DeleteAndMetrics(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	req, _ := http.NewRequest("DELETE", srv.URL+"/api/sessions/7", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, svc.deleted.Load())

	req, _ = http.NewRequest("DELETE", srv.URL+"/api/sessions/9", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest("OPTIONS", srv.URL+"/api/conversations", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func dialStream(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStream_FramesThenDone(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)
	conn := dialStream(t, srv, "/api/conversations/7/stream?augment=false")

	var first handlers.StageFrame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, "market_data", first.Stage)
	assert.Equal(t, "시장 데이터", first.DisplayName)
	assert.Equal(t, "market_data 결과", first.Response)
	assert.Contains(t, string(first.State), `"agent_id":1`)

	var second handlers.StageFrame
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "retrieve", second.Stage)

	var end handlers.EndFrame
	require.NoError(t, conn.ReadJSON(&end))
	assert.True(t, end.Done)
	assert.False(t, svc.gotAugment.Load())
}

func TestStream_ErrorFrame(t *testing.T) {
	svc := &fakeService{streamErr: errors.New("analysis failed: boom")}
	srv := newTestServer(t, svc)
	conn := dialStream(t, srv, "/api/conversations/7/stream")

	for range 2 {
		var frame handlers.StageFrame
		require.NoError(t, conn.ReadJSON(&frame))
	}
	var end handlers.EndFrame
	require.NoError(t, conn.ReadJSON(&end))
	assert.False(t, end.Done)
	assert.Equal(t, "analysis failed: boom", end.Error)
	assert.True(t, svc.gotAugment.Load())
}

func TestStream_RejectedBeforeUpgrade(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown session", "/api/conversations/99/stream", http.StatusNotFound},
		{"completed session", "/api/conversations/8/stream", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeService{})
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + tt.path
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRouter_HealthChecks(t *testing.T) {
	log := logger.Nop()
	tests := []struct {
		name       string
		checks     map[string]HealthFunc
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantState:  "ok",
		},
		{
			name: "all healthy",
			checks: map[string]HealthFunc{
				"database": func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantState:  "ok",
		},
		{
			name: "one failing",
			checks: map[string]HealthFunc{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("redis ping: refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(Handlers{
				Conversation: handlers.NewConversationHandler(&fakeService{}, true, log),
				Health:       tt.checks,
			}, log)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantState, body["status"])
			if tt.wantState == "degraded" {
				checks := body["checks"].(map[string]interface{})
				assert.Equal(t, "ok", checks["database"])
				assert.Equal(t, "redis ping: refused", checks["redis"])
			}
		})
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := New("0", logger.Nop(), http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout):
		t.Fatal("server did not stop")
	}
}
