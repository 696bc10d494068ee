package planexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wonny/finadvisor/internal/agent"
	"github.com/wonny/finadvisor/internal/contracts"
)

const plannerSystemPrompt = "For the given objective, create a concise step-by-step plan. " +
	"Only include necessary steps to reach the final answer.\n" +
	`Respond with a JSON object of the form {"steps": ["<step>", ...]}.`

const replannerTemplate = `For the given objective, update the plan based on progress so far.
Only include steps that still need to be done. If you can respond to the user now, return a Response.

Objective:
%s

Current remaining plan:
%s

Completed steps (step, result):
%s

Respond with a JSON object. To respond to the user: {"action": {"response": "<final answer>"}}.
To keep working: {"action": {"steps": ["<step>", ...]}}.`

// LLMPlanner asks a model for the initial plan
type LLMPlanner struct {
	Model contracts.StructuredChatModel
}

type planReply struct {
	Steps []string `json:"steps"`
}

// Plan returns the model's ordered step list, possibly empty
func (p LLMPlanner) Plan(ctx context.Context, objective string) ([]string, error) {
	reply, err := p.Model.InvokeJSON(ctx, []contracts.Message{
		contracts.SystemMessage(plannerSystemPrompt),
		contracts.HumanMessage(objective),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: planner: %w", agent.ErrGeneration, err)
	}

	var out planReply
	if err := json.Unmarshal([]byte(stripFences(reply)), &out); err != nil {
		return nil, fmt.Errorf("%w: planner reply: %w", agent.ErrGeneration, err)
	}
	return cleanSteps(out.Steps), nil
}

// LLMReplanner asks a model to finalize or revise the plan
type LLMReplanner struct {
	Model contracts.StructuredChatModel
}

// Replan renders the progress prompt and parses the decision
func (r LLMReplanner) Replan(ctx context.Context, objective string, plan []string, past []contracts.PastStep) (ReplanDecision, error) {
	prompt := fmt.Sprintf(replannerTemplate, objective, renderPlan(plan), renderPastSteps(past))

	reply, err := r.Model.InvokeJSON(ctx, []contracts.Message{contracts.HumanMessage(prompt)})
	if err != nil {
		return ReplanDecision{}, fmt.Errorf("%w: replanner: %w", agent.ErrGeneration, err)
	}

	dec, err := ParseDecision(reply)
	if err != nil {
		return ReplanDecision{}, fmt.Errorf("%w: replanner reply: %w", agent.ErrGeneration, err)
	}
	return dec, nil
}

type decisionBody struct {
	Response *string  `json:"response"`
	Steps    []string `json:"steps"`
}

// ParseDecision reads {"action": {...}} or the bare {"response": ...} / {"steps": [...]} form.
// An empty response string counts as no response.
func ParseDecision(reply string) (ReplanDecision, error) {
	var wrapped struct {
		Action *decisionBody `json:"action"`
		decisionBody
	}
	if err := json.Unmarshal([]byte(stripFences(reply)), &wrapped); err != nil {
		return ReplanDecision{}, err
	}

	body := wrapped.decisionBody
	if wrapped.Action != nil {
		body = *wrapped.Action
	}

	if body.Response != nil && strings.TrimSpace(*body.Response) != "" {
		return ReplanDecision{Response: body.Response}, nil
	}
	return ReplanDecision{Steps: cleanSteps(body.Steps)}, nil
}

func renderPlan(plan []string) string {
	if len(plan) == 0 {
		return "[]"
	}
	var b strings.Builder
	for i, step := range plan {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, step)
	}
	return b.String()
}

func renderPastSteps(past []contracts.PastStep) string {
	if len(past) == 0 {
		return "[]"
	}
	var b strings.Builder
	for i, p := range past {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "(%q, %q)", p.Step, p.Result)
	}
	return b.String()
}

func cleanSteps(steps []string) []string {
	var out []string
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stripFences removes a ```json ... ``` wrapper some models add even in JSON mode
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
