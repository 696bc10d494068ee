package promptconfig

import (
	"fmt"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
)

// ValidationError 검증 실패 (로드 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Meta.PromptSetID) == "" {
		return ValidationError{"meta.prompt_set_id", "required"}
	}

	seen := make(map[contracts.Stage]string, len(cfg.Stages))
	for name, p := range cfg.Stages {
		field := "stages." + name
		stage, err := contracts.ParseStage(name)
		if err != nil {
			return ValidationError{field, "unknown stage"}
		}
		// "MarketData"와 "market_data"는 같은 스테이지
		if prev, dup := seen[stage]; dup {
			return ValidationError{field, fmt.Sprintf("duplicates stages.%s", prev)}
		}
		seen[stage] = name

		if strings.TrimSpace(p.SystemPrompt) == "" && len(p.ExtraRules) == 0 {
			return ValidationError{field, "system_prompt or extra_rules required"}
		}
		for i, r := range p.ExtraRules {
			if strings.TrimSpace(r) == "" {
				return ValidationError{fmt.Sprintf("%s.extra_rules[%d]", field, i), "must not be blank"}
			}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	for name, p := range cfg.Stages {
		if p.SystemPrompt == "" {
			continue
		}
		lower := strings.ToLower(p.SystemPrompt)
		// 기본 프롬프트는 모두 한국어 답변을 강제함
		if !strings.Contains(lower, "korean") && !strings.Contains(p.SystemPrompt, "한국어") {
			warnings = append(warnings, Warning{
				Code:    "NO_LANGUAGE_RULE",
				Message: fmt.Sprintf("stages.%s: system_prompt does not require Korean answers", name),
			})
		}
	}

	if len(cfg.Stages) == 0 {
		warnings = append(warnings, Warning{
			Code:    "EMPTY_PROMPT_SET",
			Message: "no stage overrides; built-in prompts are used",
		})
	}

	return warnings
}
