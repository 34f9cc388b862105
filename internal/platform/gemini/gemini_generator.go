package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/dorem/testassist-api/internal/config"
	"github.com/dorem/testassist-api/internal/generation"
)

// Prompt templates for the AI operations. Each takes the source content
// as its single formatting argument.
const (
	extractRequirementsPrompt = `You are a senior requirements engineer. Read the following
specification document and extract a numbered list of testable software
requirements in Markdown. Each requirement gets an identifier of the form
REQ-<n>, a short title and a precise description.

Specification document:
%s`

	generateRTMPrompt = `You are a QA lead. Build a requirements traceability matrix in
Markdown from the following requirements document. Produce a table with
columns: Requirement ID, Requirement Summary, Planned Test Case IDs
(TC-<n>), Verification Method.

Requirements document:
%s`

	generateTestCasesPrompt = `You are a QA engineer. Generate detailed test cases in Markdown
from the following requirements traceability matrix. For every planned
test case ID, produce: ID, Title, Preconditions, Steps, Expected Result,
and the requirement IDs it verifies.

Requirements traceability matrix:
%s`

	analyzeCoveragePrompt = `You are a QA auditor. Compare the requirements with the
traceability matrix below and assess test coverage. Respond with JSON
only, no prose, matching exactly:
{"score": <coverage fraction between 0 and 1>,
 "summary": "<one sentence assessment>",
 "uncovered_requirements": ["REQ-..."]}

Requirements document:
%s

Requirements traceability matrix:
%s`
)

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API.
type GeminiGenerator struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a new GeminiGenerator from the LLM
// configuration, validating it and establishing the API client.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiGenerator{
		logger: logger,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// ExtractRequirements implements generation.Generator.
func (g *GeminiGenerator) ExtractRequirements(ctx context.Context, document string) (*generation.RequirementsResult, error) {
	if strings.TrimSpace(document) == "" {
		return nil, fmt.Errorf("%w: specification document", generation.ErrEmptyInput)
	}

	text, err := g.generate(ctx, "extract_requirements", fmt.Sprintf(extractRequirementsPrompt, document))
	if err != nil {
		return nil, err
	}
	return &generation.RequirementsResult{Markdown: text}, nil
}

// GenerateRTM implements generation.Generator.
func (g *GeminiGenerator) GenerateRTM(ctx context.Context, requirements string) (*generation.RTMResult, error) {
	if strings.TrimSpace(requirements) == "" {
		return nil, fmt.Errorf("%w: requirements document", generation.ErrEmptyInput)
	}

	text, err := g.generate(ctx, "generate_rtm", fmt.Sprintf(generateRTMPrompt, requirements))
	if err != nil {
		return nil, err
	}
	return &generation.RTMResult{Markdown: text}, nil
}

// GenerateTestCases implements generation.Generator.
func (g *GeminiGenerator) GenerateTestCases(ctx context.Context, rtm string) (*generation.TestCasesResult, error) {
	if strings.TrimSpace(rtm) == "" {
		return nil, fmt.Errorf("%w: requirements traceability matrix", generation.ErrEmptyInput)
	}

	text, err := g.generate(ctx, "generate_test_cases", fmt.Sprintf(generateTestCasesPrompt, rtm))
	if err != nil {
		return nil, err
	}
	return &generation.TestCasesResult{Markdown: text}, nil
}

// AnalyzeCoverage implements generation.Generator.
func (g *GeminiGenerator) AnalyzeCoverage(ctx context.Context, requirements, rtm string) (*generation.CoverageResult, error) {
	if strings.TrimSpace(requirements) == "" {
		return nil, fmt.Errorf("%w: requirements document", generation.ErrEmptyInput)
	}
	if strings.TrimSpace(rtm) == "" {
		return nil, fmt.Errorf("%w: requirements traceability matrix", generation.ErrEmptyInput)
	}

	text, err := g.generate(ctx, "coverage_analysis", fmt.Sprintf(analyzeCoveragePrompt, requirements, rtm))
	if err != nil {
		return nil, err
	}

	var result generation.CoverageResult
	if err := json.Unmarshal([]byte(extractJSON(text)), &result); err != nil {
		return nil, fmt.Errorf("%w: coverage response is not valid JSON: %v",
			generation.ErrInvalidResponse, err)
	}
	if result.Score < 0 || result.Score > 1 {
		return nil, fmt.Errorf("%w: coverage score %v out of range",
			generation.ErrInvalidResponse, result.Score)
	}

	return &result, nil
}

// generate sends a prompt to the Gemini API and returns the text of the
// first candidate.
func (g *GeminiGenerator) generate(ctx context.Context, operation, prompt string) (string, error) {
	g.logger.DebugContext(ctx, "calling Gemini API",
		"operation", operation,
		"model", g.model,
		"prompt_length", len(prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		// Preserve context cancellation so the task runner can tell a
		// cooperative cancel apart from an API failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}

	g.logger.DebugContext(ctx, "Gemini API call succeeded",
		"operation", operation,
		"response_length", len(text))

	return text, nil
}

// extractJSON strips Markdown code fences the model sometimes wraps
// around JSON output.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}
