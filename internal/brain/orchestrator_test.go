package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/finadvisor/internal/agent"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/metrics"
	"github.com/wonny/finadvisor/internal/promptconfig"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

// fakeModel answers Invoke with a numbered reply and InvokeJSON from a script
type fakeModel struct {
	mu      sync.Mutex
	calls   int
	systems []string
	json    []string
	jsonPos int
}

func (m *fakeModel) Invoke(_ context.Context, msgs []contracts.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(msgs) > 0 && msgs[0].Role == contracts.RoleSystem {
		m.systems = append(m.systems, msgs[0].Content)
	}
	return fmt.Sprintf("reply-%d", m.calls), nil
}

func (m *fakeModel) InvokeJSON(_ context.Context, _ []contracts.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jsonPos >= len(m.json) {
		return "", errors.New("script exhausted")
	}
	out := m.json[m.jsonPos]
	m.jsonPos++
	return out, nil
}

func noEvidence(context.Context, contracts.ChatProfile) ([]contracts.Document, error) {
	return nil, errors.New("evidence must not be fetched")
}

func testProfile() contracts.ChatProfile {
	return contracts.ChatProfile{Topic: "반도체 산업 전망", UserName: "kim", Capital: 1000, RiskLevel: 3}
}

// stubStage writes a fixed text or fails
type stubStage struct {
	id  contracts.Stage
	err error
}

func (s stubStage) Stage() contracts.Stage { return s.id }

func (s stubStage) Run(_ context.Context, st *contracts.PipelineState) (*contracts.PipelineState, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := st.Clone()
	out.CurrentStage = s.id
	if err := out.SetResult(s.id, s.id.String()+" done"); err != nil {
		return nil, err
	}
	return out, nil
}

func stubFactory(failAt contracts.Stage, err error) StageFactory {
	return StageFactoryFunc(func(string, bool) []agent.Stage {
		var stages []agent.Stage
		for _, id := range contracts.AllStages() {
			s := stubStage{id: id}
			if id == failAt {
				s.err = err
			}
			stages = append(stages, s)
		}
		return stages
	})
}

func TestRun_AugmentDisabledFillsAllSlots(t *testing.T) {
	model := &fakeModel{}
	orch := NewOrchestrator(DefaultStages{
		Model:  model,
		Market: noEvidence,
		Topic:  noEvidence,
		Logger: logger.Nop(),
	}, logger.Nop(), metrics.New())

	var updates []Update
	for u, err := range orch.Run(t.Context(), RunConfig{Profile: testProfile(), Augment: false, RunID: "run-1"}) {
		require.NoError(t, err)
		updates = append(updates, u)
	}

	require.Len(t, updates, 4)
	for i, stage := range contracts.AllStages() {
		assert.Equal(t, stage, updates[i].Stage)
		assert.Equal(t, "run-1", updates[i].RunID)
	}

	final := updates[3].State
	assert.Equal(t, "reply-1", final.MarketDataResponse)
	assert.Equal(t, "reply-2", final.RetrieveResponse)
	assert.Equal(t, "reply-3", final.AnalysisResponse)
	assert.Equal(t, "reply-4", final.PortfolioResponse)
	assert.Empty(t, final.MarketDataDocs)
	assert.Empty(t, final.RetrieveDocs)
	assert.Equal(t, contracts.StagePortfolio, final.CurrentStage)

	// 스냅샷은 독립적
	assert.Empty(t, updates[0].State.RetrieveResponse)
}

func TestRun_PlanStageUsesController(t *testing.T) {
	model := &fakeModel{json: []string{
		`{"steps": ["시세 확인"]}`,
		`{"action": {"response": "최종 시장 요약"}}`,
	}}
	orch := NewOrchestrator(DefaultStages{
		Model:    model,
		Market:   noEvidence,
		Topic:    noEvidence,
		Pipeline: config.PipelineConfig{PlanStages: []string{"market_data"}, MaxPlanIterations: 5},
	}, nil, nil)

	res, err := orch.RunToCompletion(t.Context(), RunConfig{Profile: testProfile()})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"market_data", "retrieve", "analysis", "portfolio"}, res.CompletedStages)
	assert.Equal(t, "최종 시장 요약", res.Final.MarketDataResponse)
	assert.Equal(t, "reply-2", res.Final.RetrieveResponse)
	assert.Equal(t, "reply-4", res.Final.PortfolioResponse)
}

func TestRun_PromptSetOverridesSystemPrompt(t *testing.T) {
	prompts, err := promptconfig.Parse([]byte(
		"meta: {prompt_set_id: test}\nstages:\n  analysis: {system_prompt: '분석 전용 프롬프트. Answer in Korean.'}\n"))
	require.NoError(t, err)

	model := &fakeModel{}
	orch := NewOrchestrator(DefaultStages{
		Model:   model,
		Market:  noEvidence,
		Topic:   noEvidence,
		Prompts: prompts,
	}, nil, nil)

	_, err = orch.RunToCompletion(t.Context(), RunConfig{Profile: testProfile()})
	require.NoError(t, err)

	require.Len(t, model.systems, 4)
	assert.Contains(t, model.systems[0], "MarketData Agent")
	assert.Equal(t, "분석 전용 프롬프트. Answer in Korean.", model.systems[2])
}

func TestRun_StageFailureAborts(t *testing.T) {
	boom := errors.New("model down")
	orch := NewOrchestrator(stubFactory(contracts.StageAnalysis, boom), logger.Nop(), metrics.New())

	var (
		stages []contracts.Stage
		errs   []error
	)
	for u, err := range orch.Run(t.Context(), RunConfig{Profile: testProfile()}) {
		stages = append(stages, u.Stage)
		errs = append(errs, err)
	}

	require.Len(t, stages, 3)
	assert.Equal(t, contracts.StageAnalysis, stages[2])
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	require.Error(t, errs[2])
	assert.ErrorIs(t, errs[2], boom)
	assert.Contains(t, errs[2].Error(), "analysis failed")
}

func TestRunToCompletion_ReturnsPartialOnError(t *testing.T) {
	boom := errors.New("boom")
	orch := NewOrchestrator(stubFactory(contracts.StageRetrieve, boom), nil, nil)

	res, err := orch.RunToCompletion(t.Context(), RunConfig{Profile: testProfile(), RunID: "fixed"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "fixed", res.RunID)
	assert.Equal(t, []string{"market_data"}, res.CompletedStages)
	assert.Equal(t, "market_data done", res.Final.MarketDataResponse)
}

func TestRun_ConsumerStopsEarly(t *testing.T) {
	orch := NewOrchestrator(stubFactory(contracts.StageUnset, nil), nil, nil)

	count := 0
	for range orch.Run(t.Context(), RunConfig{Profile: testProfile()}) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestRun_InvalidProfileAndCancelledContext(t *testing.T) {
	orch := NewOrchestrator(stubFactory(contracts.StageUnset, nil), nil, nil)

	t.Run("invalid profile", func(t *testing.T) {
		bad := testProfile()
		bad.RiskLevel = 9
		_, err := orch.RunToCompletion(t.Context(), RunConfig{Profile: bad})
		assert.ErrorIs(t, err, contracts.ErrInvalidProfile)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		res, err := orch.RunToCompletion(ctx, RunConfig{Profile: testProfile()})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, res.CompletedStages)
	})
}

func TestNewRunID_Unique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
