package contracts

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// ChatProfile is the per-conversation input. It is never mutated after start.
type ChatProfile struct {
	Topic     string  `json:"topic"`
	UserName  string  `json:"user_name"`
	Capital   float64 `json:"capital"` // 만원
	RiskLevel int     `json:"risk_level"`
}

// Validate checks the profile invariants
func (p ChatProfile) Validate() error {
	if strings.TrimSpace(p.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidProfile)
	}
	if p.Capital <= 0 {
		return fmt.Errorf("%w: capital must be positive, got %v", ErrInvalidProfile, p.Capital)
	}
	if p.RiskLevel < 1 || p.RiskLevel > 5 {
		return fmt.Errorf("%w: risk level must be 1-5, got %d", ErrInvalidProfile, p.RiskLevel)
	}
	return nil
}

// CapitalText renders capital the way prompts show it: 1000 → "1000", 1500.5 → "1500.5"
func (p ChatProfile) CapitalText() string {
	return strconv.FormatFloat(p.Capital, 'f', -1, 64)
}

// Message roles
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
)

// Message is one role-tagged entry of a model prompt
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system message
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// HumanMessage builds a user message
func HumanMessage(content string) Message { return Message{Role: RoleHuman, Content: content} }

// AIMessage builds an assistant message
func AIMessage(content string) Message { return Message{Role: RoleAI, Content: content} }

// Well-known document metadata keys
const (
	MetaSource         = "source"
	MetaSection        = "section"
	MetaRelevanceScore = "relevance_score"
	MetaRank           = "rank"
)

// Document is one unit of retrieved evidence
type Document struct {
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`
}

// Source returns the source metadata value, or "" when absent
func (d Document) Source() string {
	return d.metaString(MetaSource)
}

// Section returns the section metadata value, or "" when absent
func (d Document) Section() string {
	return d.metaString(MetaSection)
}

func (d Document) metaString(key string) string {
	v, ok := d.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// With returns a copy of d with key set in a copied metadata map
func (d Document) With(key string, value any) Document {
	out := d.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[key] = value
	return out
}

// Clone copies the metadata map so the copy can be annotated independently
func (d Document) Clone() Document {
	return Document{Content: d.Content, Metadata: maps.Clone(d.Metadata)}
}

// PastStep records one executed plan step and its produced text
type PastStep struct {
	Step   string `json:"step"`
	Result string `json:"result"`
}

// PipelineState is the single state object threaded through a run.
// It is owned by exactly one stage at a time.
// ⭐ SSOT: 스테이지 간 데이터는 이 구조체로만 전달
type PipelineState struct {
	Chat         ChatProfile `json:"chat_state"`
	CurrentStage Stage       `json:"agent_id"`

	MarketDataDocs     []Document `json:"market_data_docs"`
	MarketDataResponse string     `json:"market_data_response"`
	RetrieveDocs       []Document `json:"retrieve_docs"`
	RetrieveResponse   string     `json:"retrieve_response"`
	AnalysisResponse   string     `json:"analysis_response"`
	PortfolioResponse  string     `json:"portfolio_response"`

	// stage-local working memory
	Context  string    `json:"context"`
	Messages []Message `json:"messages"`
	Response string    `json:"response"`

	// set only while a plan step executes
	CurrentStep string   `json:"current_step,omitempty"`
	Plan        []string `json:"plan,omitempty"`
}

// NewPipelineState returns the initial state for a run
func NewPipelineState(profile ChatProfile) *PipelineState {
	return &PipelineState{Chat: profile, CurrentStage: StageUnset}
}

// SetResult writes text into the stage's result slot and mirrors it to Response.
// A slot that already holds a result is never overwritten.
func (s *PipelineState) SetResult(stage Stage, text string) error {
	slot := stage.Slot(s)
	if slot == nil {
		return fmt.Errorf("%w: %d", ErrInvalidStage, int(stage))
	}
	if *slot != "" {
		return fmt.Errorf("%w: %s", ErrSlotWritten, stage)
	}
	*slot = text
	s.Response = text
	return nil
}

// Result returns the stage's result slot value
func (s *PipelineState) Result(stage Stage) string {
	if slot := stage.Slot(s); slot != nil {
		return *slot
	}
	return ""
}

// SetEvidence stores the documents collected by an evidence-producing stage
func (s *PipelineState) SetEvidence(stage Stage, docs []Document) {
	switch stage {
	case StageMarketData:
		s.MarketDataDocs = docs
	case StageRetrieve:
		s.RetrieveDocs = docs
	}
}

// Clone returns a deep copy safe to hand to another goroutine
func (s *PipelineState) Clone() *PipelineState {
	out := *s
	out.MarketDataDocs = cloneDocs(s.MarketDataDocs)
	out.RetrieveDocs = cloneDocs(s.RetrieveDocs)
	if s.Messages != nil {
		out.Messages = append([]Message(nil), s.Messages...)
	}
	if s.Plan != nil {
		out.Plan = append([]string(nil), s.Plan...)
	}
	return &out
}

func cloneDocs(docs []Document) []Document {
	if docs == nil {
		return nil
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
