package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage(t *testing.T) {
	tests := []struct {
		stage   Stage
		name    string
		display string
	}{
		{StageMarketData, "market_data", "시장 데이터"},
		{StageRetrieve, "retrieve", "정보 검색"},
		{StageAnalysis, "analysis", "분석"},
		{StagePortfolio, "portfolio", "포트폴리오"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.stage.Valid())
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.display, tt.stage.DisplayName())

			parsed, err := ParseStage(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.stage, parsed)
		})
	}

	assert.False(t, StageUnset.Valid())
	assert.False(t, Stage(9).Valid())
	assert.Equal(t, []Stage{StageMarketData, StageRetrieve, StageAnalysis, StagePortfolio}, AllStages())

	_, err := ParseStage("trend")
	assert.Error(t, err)
}

func TestSetResultWritesOnlyOwnSlot(t *testing.T) {
	for _, stage := range AllStages() {
		t.Run(stage.String(), func(t *testing.T) {
			st := NewPipelineState(ChatProfile{Topic: "반도체", Capital: 1000, RiskLevel: 3})
			require.NoError(t, st.SetResult(stage, "out"))

			for _, other := range AllStages() {
				if other == stage {
					assert.Equal(t, "out", st.Result(other))
				} else {
					assert.Empty(t, st.Result(other))
				}
			}
			assert.Equal(t, "out", st.Response)

			err := st.SetResult(stage, "again")
			assert.ErrorIs(t, err, ErrSlotWritten)
			assert.Equal(t, "out", st.Result(stage))
		})
	}

	st := &PipelineState{}
	assert.ErrorIs(t, st.SetResult(StageUnset, "x"), ErrInvalidStage)
}

func TestChatProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile ChatProfile
		wantErr bool
	}{
		{"valid", ChatProfile{Topic: "반도체", Capital: 1000, RiskLevel: 3}, false},
		{"empty topic", ChatProfile{Topic: " ", Capital: 1000, RiskLevel: 3}, true},
		{"zero capital", ChatProfile{Topic: "a", Capital: 0, RiskLevel: 3}, true},
		{"risk too high", ChatProfile{Topic: "a", Capital: 10, RiskLevel: 6}, true},
		{"risk too low", ChatProfile{Topic: "a", Capital: 10, RiskLevel: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProfile)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := NewPipelineState(ChatProfile{Topic: "t", Capital: 1, RiskLevel: 1})
	st.MarketDataDocs = []Document{{Content: "a", Metadata: map[string]any{"source": "x"}}}
	st.Plan = []string{"step"}

	cp := st.Clone()
	cp.MarketDataDocs[0].Metadata["source"] = "y"
	cp.Plan[0] = "changed"

	assert.Equal(t, "x", st.MarketDataDocs[0].Source())
	assert.Equal(t, "step", st.Plan[0])
}

func TestDocumentWith(t *testing.T) {
	d := Document{Content: "c", Metadata: map[string]any{"source": "s"}}
	scored := d.With(MetaRelevanceScore, 0.9)

	assert.Equal(t, 0.9, scored.Metadata[MetaRelevanceScore])
	_, leaked := d.Metadata[MetaRelevanceScore]
	assert.False(t, leaked)

	assert.Equal(t, "", Document{}.Source())
	assert.Equal(t, "3", Document{Metadata: map[string]any{"section": 3}}.Section())
}
