package statecodec

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
)

// Older rows stored documents and messages as their repr text, e.g.
//
//	page_content='...' metadata={'source': 'x', 'price': np.float32(8.3)}
//	content='...' additional_kwargs={}
var (
	legacyDocPattern = regexp.MustCompile(`(?s)page_content='(.*?)'\s+metadata=(\{.*\})$`)
	legacyMsgPattern = regexp.MustCompile(`(?s)content='(.*?)'`)

	npFloatPattern = regexp.MustCompile(`np\.float(?:16|32|64)\s*\(\s*([+-]?(?:\d+\.\d*|\d*\.\d+|\d+)(?:[eE][+-]?\d+)?)\s*\)`)
	npIntPattern   = regexp.MustCompile(`np\.int(?:8|16|32|64)\s*\(\s*([+-]?\d+)\s*\)`)

	pyTrue      = regexp.MustCompile(`\bTrue\b`)
	pyFalse     = regexp.MustCompile(`\bFalse\b`)
	pyNone      = regexp.MustCompile(`\bNone\b`)
	pyNonFinite = regexp.MustCompile(`\bnan\b|\bNaN\b|\bInfinity\b|-?\binf\b`)
)

// ParseLegacyDocument reads a repr-encoded document. Text that does not look
// like a document becomes the content with empty metadata; unparsable
// metadata becomes empty metadata.
func ParseLegacyDocument(text string) contracts.Document {
	m := legacyDocPattern.FindStringSubmatch(text)
	if m == nil {
		return contracts.Document{Content: text, Metadata: map[string]any{}}
	}

	return contracts.Document{Content: m[1], Metadata: parseLegacyMetadata(m[2])}
}

// parseLegacyMetadata tries a literal parse, then a JSON-normalized parse,
// then gives up with an empty map
func parseLegacyMetadata(raw string) map[string]any {
	raw = normalizeMetaLiterals(raw)

	if meta, ok := parseLiteralMetadata(raw); ok {
		return meta
	}
	if meta, ok := parseJSONNormalizedMetadata(raw); ok {
		return meta
	}
	return map[string]any{}
}

// normalizeMetaLiterals rewrites numpy scalar calls to plain numbers:
// np.float32(8.3) → 8.3, np.int64(5) → 5
func normalizeMetaLiterals(text string) string {
	text = npFloatPattern.ReplaceAllString(text, "$1")
	return npIntPattern.ReplaceAllString(text, "$1")
}

func parseLiteralMetadata(raw string) (map[string]any, bool) {
	v, err := parsePyLiteral(raw)
	if err != nil {
		return nil, false
	}
	meta, ok := v.(map[string]any)
	return meta, ok
}

func parseJSONNormalizedMetadata(raw string) (map[string]any, bool) {
	normalized := pyTrue.ReplaceAllString(raw, "true")
	normalized = pyFalse.ReplaceAllString(normalized, "false")
	normalized = pyNone.ReplaceAllString(normalized, "null")
	normalized = pyNonFinite.ReplaceAllString(normalized, "null")

	inner := strings.TrimSpace(normalized)
	if strings.HasPrefix(inner, "{") && strings.HasSuffix(inner, "}") {
		inner = strings.ReplaceAll(inner, "'", `"`)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(inner), &meta); err != nil || meta == nil {
		return nil, false
	}
	return meta, true
}

// ParseLegacyMessage reads a repr-encoded message. Legacy rows carry no role,
// so every message decodes as a human message.
func ParseLegacyMessage(text string) contracts.Message {
	if m := legacyMsgPattern.FindStringSubmatch(text); m != nil {
		return contracts.HumanMessage(m[1])
	}
	return contracts.HumanMessage(text)
}
