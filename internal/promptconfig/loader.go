package promptconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/finadvisor/internal/agent"
	"github.com/wonny/finadvisor/internal/contracts"
)

// Load reads a YAML prompt set and returns Config with raw bytes
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read prompt set: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Parse decodes and validates a YAML prompt set
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode prompt set: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Hash generates SHA256 hash from Config (canonical JSON, map keys sorted)
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewSnapshot identifies cfg for run logs
func NewSnapshot(cfg *Config) (Snapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		PromptSetID: cfg.Meta.PromptSetID,
		Version:     cfg.Meta.Version,
		ConfigHash:  hash,
	}, nil
}

// Apply returns copies of defs with overridden system prompts.
// A nil Config returns defs unchanged.
func (c *Config) Apply(defs []agent.Definition) []agent.Definition {
	if c == nil || len(c.Stages) == 0 {
		return defs
	}

	overrides := make(map[contracts.Stage]StagePrompt, len(c.Stages))
	for name, p := range c.Stages {
		// Validate에서 이미 확인됨
		if stage, err := contracts.ParseStage(name); err == nil {
			overrides[stage] = p
		}
	}

	out := make([]agent.Definition, len(defs))
	for i, def := range defs {
		if p, ok := overrides[def.Stage]; ok {
			def.SystemPrompt = p.Render(def.SystemPrompt)
		}
		out[i] = def
	}
	return out
}
