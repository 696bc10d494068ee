// Package statecodec persists PipelineState as JSON and reads back every
// historical encoding of its documents and messages.
package statecodec

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/wonny/finadvisor/internal/contracts"
)

// Type tags written into structured elements
const (
	typeDocument = "Document"
	typeMessage  = "Message"
)

type wireDocument struct {
	Type        string         `json:"__type__"`
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

type wireMessage struct {
	Type    string `json:"__type__"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireState struct {
	ChatState          contracts.ChatProfile `json:"chat_state"`
	AgentID            int                   `json:"agent_id"`
	MarketDataDocs     []wireDocument        `json:"market_data_docs"`
	MarketDataResponse string                `json:"market_data_response"`
	RetrieveDocs       []wireDocument        `json:"retrieve_docs"`
	RetrieveResponse   string                `json:"retrieve_response"`
	AnalysisResponse   string                `json:"analysis_response"`
	PortfolioResponse  string                `json:"portfolio_response"`
	Context            string                `json:"context"`
	Messages           []wireMessage         `json:"messages"`
	Response           string                `json:"response"`
}

// Encode serializes a state in the structured form
func Encode(st *contracts.PipelineState) (string, error) {
	w := wireState{
		ChatState:          st.Chat,
		AgentID:            int(st.CurrentStage),
		MarketDataDocs:     encodeDocuments(st.MarketDataDocs),
		MarketDataResponse: st.MarketDataResponse,
		RetrieveDocs:       encodeDocuments(st.RetrieveDocs),
		RetrieveResponse:   st.RetrieveResponse,
		AnalysisResponse:   st.AnalysisResponse,
		PortfolioResponse:  st.PortfolioResponse,
		Context:            st.Context,
		Messages:           encodeMessages(st.Messages),
		Response:           st.Response,
	}

	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	return string(data), nil
}

func encodeDocuments(docs []contracts.Document) []wireDocument {
	if docs == nil {
		return nil
	}
	out := make([]wireDocument, len(docs))
	for i, d := range docs {
		out[i] = wireDocument{
			Type:        typeDocument,
			PageContent: d.Content,
			Metadata:    sanitizeMetadata(d.Metadata),
		}
	}
	return out
}

func encodeMessages(msgs []contracts.Message) []wireMessage {
	if msgs == nil {
		return nil
	}
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wireMessage{Type: typeMessage, Role: string(m.Role), Content: m.Content}
	}
	return out
}

// sanitizeMetadata replaces values JSON cannot carry (NaN, ±Inf) with null
func sanitizeMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				v = nil
			}
		case float32:
			if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
				v = nil
			}
		}
		out[k] = v
	}
	return out
}
