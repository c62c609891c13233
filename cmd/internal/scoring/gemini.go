package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const systemPrompt = `You are an expert interview coach and evaluator.
Analyze the candidate's answer to the interview question and provide detailed feedback.
Rate the answer on a scale of 1-10 and provide constructive feedback.

Evaluate based on:
1. Structure (STAR method, CIRCLE method, AARM method, logical flow)
2. Content (relevant examples, specific details)
3. Communication (clarity, confidence, professionalism)

Respond with JSON in this exact format:
{
  "score": number (1-10),
  "positiveComment": "What the candidate did well",
  "improvementComment": "Areas for improvement and specific suggestions",
  "structureScore": number (1-10),
  "contentScore": number (1-10),
  "communicationScore": number (1-10)
}`

// GeminiClient asks a Gemini model for a structured evaluation.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient builds a client for the Gemini API. A nil httpClient uses
// the SDK default.
func NewGeminiClient(ctx context.Context, cfg Config, httpClient *http.Client) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("scoring: gemini api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		cc.HTTPOptions.BaseURL = base + "/"
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("scoring: gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

var evaluationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score":              {Type: genai.TypeNumber},
		"positiveComment":    {Type: genai.TypeString},
		"improvementComment": {Type: genai.TypeString},
		"structureScore":     {Type: genai.TypeNumber},
		"contentScore":       {Type: genai.TypeNumber},
		"communicationScore": {Type: genai.TypeNumber},
	},
	Required: []string{"score", "positiveComment", "improvementComment", "structureScore", "contentScore", "communicationScore"},
}

func buildPrompt(req Request) string {
	return fmt.Sprintf(`Interview Question: %s

Candidate's Answer: %s

Text from book decode and conquer relevant to this question: %s

Please evaluate this answer and provide detailed feedback.`, req.Question, req.Answer, req.Reference)
}

// Evaluate sends one answer to Gemini. Results are clamped; all failures wrap ErrScoringUnavailable.
func (c *GeminiClient) Evaluate(ctx context.Context, req Request) (Evaluation, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(buildPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    evaluationSchema,
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Evaluation{}, fmt.Errorf("%w: empty response", ErrScoringUnavailable)
	}
	return parseEvaluation(text)
}

// parseEvaluation decodes the model's JSON payload, tolerating a fenced code block.
func parseEvaluation(text string) (Evaluation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var payload struct {
		Score              *float64 `json:"score"`
		PositiveComment    string   `json:"positiveComment"`
		ImprovementComment string   `json:"improvementComment"`
		StructureScore     *float64 `json:"structureScore"`
		ContentScore       *float64 `json:"contentScore"`
		CommunicationScore *float64 `json:"communicationScore"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &payload); err != nil {
		return Evaluation{}, fmt.Errorf("%w: malformed evaluation: %v", ErrScoringUnavailable, err)
	}
	if payload.Score == nil || payload.StructureScore == nil || payload.ContentScore == nil || payload.CommunicationScore == nil {
		return Evaluation{}, fmt.Errorf("%w: evaluation is missing scores", ErrScoringUnavailable)
	}

	return Clamp(Evaluation{
		Score:              *payload.Score,
		PositiveComment:    payload.PositiveComment,
		ImprovementComment: payload.ImprovementComment,
		StructureScore:     *payload.StructureScore,
		ContentScore:       *payload.ContentScore,
		CommunicationScore: *payload.CommunicationScore,
	}), nil
}
