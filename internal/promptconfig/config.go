package promptconfig

// Config는 스테이지별 시스템 프롬프트 오버라이드 세트
type Config struct {
	Meta   Meta                   `yaml:"meta" json:"meta"`
	Stages map[string]StagePrompt `yaml:"stages" json:"stages"`
}

// Meta 메타 정보
type Meta struct {
	PromptSetID string `yaml:"prompt_set_id" json:"prompt_set_id"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
}

// StagePrompt overrides one stage's system prompt.
// SystemPrompt replaces the built-in text; ExtraRules are appended as bullet lines.
type StagePrompt struct {
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt"`
	ExtraRules   []string `yaml:"extra_rules" json:"extra_rules"`
}

// Render returns the effective system prompt given the built-in one
func (p StagePrompt) Render(builtin string) string {
	out := builtin
	if p.SystemPrompt != "" {
		out = p.SystemPrompt
	}
	if len(p.ExtraRules) == 0 {
		return out
	}
	if out != "" && out[len(out)-1] != '\n' {
		out += "\n"
	}
	out += "Additional rules:\n"
	for _, r := range p.ExtraRules {
		out += "- " + r + "\n"
	}
	return out
}

// Snapshot records which prompt set a run used
type Snapshot struct {
	PromptSetID string `json:"prompt_set_id"`
	Version     string `json:"version"`
	ConfigHash  string `json:"config_hash"`
}
