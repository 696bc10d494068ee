package config_test

import (
	"fmt"

	"github.com/wonny/finadvisor/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Server running on port: %s\n", cfg.Port)
	fmt.Printf("Environment: %s\n", cfg.Env)
	fmt.Printf("Chat model: %s\n", cfg.LLM.Model)
	fmt.Printf("Plan stages: %v\n", cfg.Pipeline.PlanStages)
}

// ExamplePipelineConfig_PlanEnabled shows stage name matching
func ExamplePipelineConfig_PlanEnabled() {
	p := config.PipelineConfig{PlanStages: []string{" Market_Data ", "analysis"}}

	fmt.Println(p.PlanEnabled("market_data"))
	fmt.Println(p.PlanEnabled("analysis"))
	fmt.Println(p.PlanEnabled("portfolio"))
	// Output:
	// true
	// true
	// false
}

// ExampleResolveCrossEncoderModel shows alias resolution
func ExampleResolveCrossEncoderModel() {
	fmt.Println(config.ResolveCrossEncoderModel("multilingual"))
	fmt.Println(config.ResolveCrossEncoderModel("my-org/custom-ranker"))
	// Output:
	// cross-encoder/mmarco-mMiniLMv2-L12-H384-v1
	// my-org/custom-ranker
}
