// Package llm drafts sales briefings for captured leads through an
// OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tetrispositiva/diagnostico/internal/llm/prompts"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/scoring"
)

// Insight is the briefing returned for one lead.
type Insight struct {
	Summary    string   `json:"summary"`
	Approach   string   `json:"approach"`
	Objections []string `json:"objections"`
	NextStep   string   `json:"next_step"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client. An unknown variant is rejected.
func New(baseURL, apiKey, modelName, variant string) (*Client, error) {
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	if err := prompts.Load(prompts.Files); err != nil {
		return nil, err
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: prompts.PromptVariant(variant),
	}, nil
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// LeadInsight asks the model for a briefing on lead, whose answers were
// given to diagnostic d.
func (c *Client) LeadInsight(ctx context.Context, lead model.Lead, d model.Diagnostic) (*Insight, error) {
	prompt, err := prompts.BuildInsightPrompt(c.variant, insightData(lead, d))
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "lead_id", lead.ID, "raw", raw)

	var insight Insight
	if err := json.Unmarshal([]byte(raw), &insight); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	if insight.Objections == nil {
		insight.Objections = []string{}
	}
	return &insight, nil
}

// insightData describes the lead with the band stored on it; when the
// diagnostic no longer has that band the answers are scored again.
func insightData(lead model.Lead, d model.Diagnostic) prompts.InsightData {
	res := scoring.Evaluate(d, lead.Answers)
	for _, b := range d.Bands {
		if b.Profile == lead.Profile {
			res.Level, res.Description, res.MainRisk = b.Level, b.Description, b.MainRisk
			res.RecommendedSolution, res.Signals, res.EvolutionPlan = b.RecommendedSolution, b.Signals, b.EvolutionPlan
			break
		}
	}
	return prompts.InsightData{
		DiagnosticTitle:     d.Title,
		LeadName:            lead.Contact.Name,
		Profile:             lead.Profile,
		Level:               res.Level,
		Score:               lead.Score,
		RawTotal:            lead.RawTotal,
		Description:         res.Description,
		MainRisk:            res.MainRisk,
		RecommendedSolution: res.RecommendedSolution,
		Signals:             res.Signals,
		EvolutionPlan:       res.EvolutionPlan,
		Answers:             answerLines(d.Questions, lead.Answers),
	}
}

// answerLines pairs recorded points with question text. Leads store points,
// not option positions, so the first option worth those points is shown.
func answerLines(questions []model.Question, answers []int) []prompts.AnswerLine {
	lines := make([]prompts.AnswerLine, 0, len(answers))
	for i, pts := range answers {
		line := prompts.AnswerLine{Question: fmt.Sprintf("Pergunta %d", i+1), Answer: "?", Points: pts}
		if i < len(questions) {
			line.Question = questions[i].Text
			for _, o := range questions[i].Options {
				if o.Points == pts {
					line.Answer = o.Text
					break
				}
			}
		}
		lines = append(lines, line)
	}
	return lines
}
