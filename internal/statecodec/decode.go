package statecodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
)

// readState mirrors wireState with element slots left raw, since each element
// may be in structured or legacy form
type readState struct {
	ChatState          map[string]any    `json:"chat_state"`
	AgentID            any               `json:"agent_id"`
	MarketDataDocs     []json.RawMessage `json:"market_data_docs"`
	MarketDataResponse string            `json:"market_data_response"`
	RetrieveDocs       []json.RawMessage `json:"retrieve_docs"`
	RetrieveResponse   string            `json:"retrieve_response"`
	AnalysisResponse   string            `json:"analysis_response"`
	PortfolioResponse  string            `json:"portfolio_response"`
	Context            string            `json:"context"`
	Messages           []json.RawMessage `json:"messages"`
	Response           string            `json:"response"`
}

// Decode reads a persisted state. Only a top level that is not a JSON object
// is an error; malformed elements degrade instead of failing.
func Decode(text string) (*contracts.PipelineState, error) {
	var r readState
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}

	st := &contracts.PipelineState{
		Chat:               decodeProfile(r.ChatState),
		CurrentStage:       contracts.Stage(toInt(r.AgentID)),
		MarketDataResponse: r.MarketDataResponse,
		RetrieveResponse:   r.RetrieveResponse,
		AnalysisResponse:   r.AnalysisResponse,
		PortfolioResponse:  r.PortfolioResponse,
		Context:            r.Context,
		Response:           r.Response,
	}

	st.MarketDataDocs = decodeDocuments(r.MarketDataDocs)
	st.RetrieveDocs = decodeDocuments(r.RetrieveDocs)
	if r.Messages != nil {
		st.Messages = make([]contracts.Message, len(r.Messages))
		for i, raw := range r.Messages {
			st.Messages[i] = DecodeMessage(raw)
		}
	}

	return st, nil
}

// decodeDocuments keeps null (nil) and [] (empty) apart
func decodeDocuments(raws []json.RawMessage) []contracts.Document {
	if raws == nil {
		return nil
	}
	out := make([]contracts.Document, len(raws))
	for i, raw := range raws {
		out[i] = DecodeDocument(raw)
	}
	return out
}

// DecodeDocument reads one document element in any supported form:
// a tagged object, an untagged object with page_content, or a legacy repr string
func DecodeDocument(raw json.RawMessage) contracts.Document {
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err == nil {
			if doc, ok := decodeStructuredDocument(obj); ok {
				return doc
			}
		}
		return ParseLegacyDocument(string(raw))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseLegacyDocument(s)
	}
	return ParseLegacyDocument(string(raw))
}

func decodeStructuredDocument(obj map[string]json.RawMessage) (contracts.Document, bool) {
	var typ string
	if t, ok := obj["__type__"]; ok {
		_ = json.Unmarshal(t, &typ)
	}
	content, hasContent := obj["page_content"]
	if typ != typeDocument && !hasContent {
		return contracts.Document{}, false
	}

	var doc contracts.Document
	if hasContent {
		_ = json.Unmarshal(content, &doc.Content)
	}
	if meta, ok := obj["metadata"]; ok {
		_ = json.Unmarshal(meta, &doc.Metadata)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	return doc, true
}

// DecodeMessage reads one message element in structured or legacy form
func DecodeMessage(raw json.RawMessage) contracts.Message {
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '{' {
		var w wireMessage
		if err := json.Unmarshal(raw, &w); err == nil && (w.Type == typeMessage || w.Role != "") {
			return contracts.Message{Role: normalizeRole(w.Role), Content: w.Content}
		}
		return ParseLegacyMessage(string(raw))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseLegacyMessage(s)
	}
	return ParseLegacyMessage(string(raw))
}

func normalizeRole(role string) contracts.Role {
	switch strings.ToLower(role) {
	case "system":
		return contracts.RoleSystem
	case "ai", "assistant":
		return contracts.RoleAI
	default:
		return contracts.RoleHuman
	}
}

func decodeProfile(m map[string]any) contracts.ChatProfile {
	p := contracts.ChatProfile{
		Topic:     toString(m["topic"]),
		UserName:  toString(m["user_name"]),
		Capital:   toFloat(m["capital"]),
		RiskLevel: toInt(m["risk_level"]),
	}
	if p.UserName == "" {
		p.UserName = toString(m["name"])
	}
	return p
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	default:
		return 0
	}
}

func toInt(v any) int {
	return int(toFloat(v))
}
