package task

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dorem/testassist-api/internal/domain"
	"github.com/dorem/testassist-api/internal/generation"
)

// GenerateRequirementsPayload is the input for the generate_requirements kind.
type GenerateRequirementsPayload struct {
	Document string `json:"document"`
}

// GenerateRTMPayload is the input for the generate_rtm kind.
type GenerateRTMPayload struct {
	Requirements string `json:"requirements"`
}

// GenerateTestCasesPayload is the input for the generate_test_cases kind.
type GenerateTestCasesPayload struct {
	RTM string `json:"rtm"`
}

// CoverageAnalysisPayload is the input for the coverage_analysis kind.
type CoverageAnalysisPayload struct {
	Requirements string `json:"requirements"`
	RTM          string `json:"rtm"`
}

// FileProcessingPayload is the input for the file_processing kind.
type FileProcessingPayload struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// FileProcessingResult is the output of the file_processing kind.
type FileProcessingResult struct {
	FileName string `json:"file_name"`
	Bytes    int    `json:"bytes"`
	Lines    int    `json:"lines"`
	SHA256   string `json:"sha256"`
}

// decodePayload unmarshals a work payload, turning malformed input into a
// task failure rather than a panic deeper in the work function.
func decodePayload(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid task payload: %w", err)
	}
	return nil
}

// NewGenerateRequirementsWorkFunc returns the work function for the
// generate_requirements kind: it extracts a structured requirements
// document from raw specification text via the generator.
func NewGenerateRequirementsWorkFunc(generator generation.Generator, logger *slog.Logger) WorkFunc {
	return func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
		var p GenerateRequirementsPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}

		report(domain.TaskProgress{CurrentStep: "extracting requirements", TotalSteps: 1, Percentage: 0})

		result, err := generator.ExtractRequirements(ctx, p.Document)
		if err != nil {
			return nil, err
		}

		report(domain.TaskProgress{CurrentStep: "done", TotalSteps: 1, Percentage: 100})
		return json.Marshal(result)
	}
}

// NewGenerateRTMWorkFunc returns the work function for the generate_rtm
// kind: it builds a requirements traceability matrix from a requirements
// document.
func NewGenerateRTMWorkFunc(generator generation.Generator, logger *slog.Logger) WorkFunc {
	return func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
		var p GenerateRTMPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}

		report(domain.TaskProgress{CurrentStep: "building traceability matrix", TotalSteps: 1, Percentage: 0})

		result, err := generator.GenerateRTM(ctx, p.Requirements)
		if err != nil {
			return nil, err
		}

		report(domain.TaskProgress{CurrentStep: "done", TotalSteps: 1, Percentage: 100})
		return json.Marshal(result)
	}
}

// NewGenerateTestCasesWorkFunc returns the work function for the
// generate_test_cases kind: it derives test cases from a traceability
// matrix.
func NewGenerateTestCasesWorkFunc(generator generation.Generator, logger *slog.Logger) WorkFunc {
	return func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
		var p GenerateTestCasesPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}

		report(domain.TaskProgress{CurrentStep: "generating test cases", TotalSteps: 1, Percentage: 0})

		result, err := generator.GenerateTestCases(ctx, p.RTM)
		if err != nil {
			return nil, err
		}

		report(domain.TaskProgress{CurrentStep: "done", TotalSteps: 1, Percentage: 100})
		return json.Marshal(result)
	}
}

// NewCoverageAnalysisWorkFunc returns the work function for the
// coverage_analysis kind: it scores how completely the matrix's test
// cases cover the requirements.
func NewCoverageAnalysisWorkFunc(generator generation.Generator, logger *slog.Logger) WorkFunc {
	return func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
		var p CoverageAnalysisPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}

		report(domain.TaskProgress{CurrentStep: "analyzing coverage", TotalSteps: 1, Percentage: 0})

		result, err := generator.AnalyzeCoverage(ctx, p.Requirements, p.RTM)
		if err != nil {
			return nil, err
		}

		logger.DebugContext(ctx, "coverage analysis finished",
			"score", result.Score,
			"uncovered_count", len(result.UncoveredRequirements))

		report(domain.TaskProgress{CurrentStep: "done", TotalSteps: 1, Percentage: 100})
		return json.Marshal(result)
	}
}

// NewFileProcessingWorkFunc returns the work function for the
// file_processing kind: it computes basic statistics and a content hash
// for an uploaded document. Unlike the AI kinds it needs no external
// service.
func NewFileProcessingWorkFunc(logger *slog.Logger) WorkFunc {
	return func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
		var p FileProcessingPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		if p.FileName == "" {
			return nil, fmt.Errorf("invalid task payload: file_name is required")
		}

		report(domain.TaskProgress{CurrentStep: "hashing content", TotalSteps: 2, Percentage: 0})

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sum := sha256.Sum256([]byte(p.Content))

		report(domain.TaskProgress{CurrentStep: "counting lines", TotalSteps: 2, Percentage: 50})

		lines := 0
		if p.Content != "" {
			lines = strings.Count(p.Content, "\n")
			if !strings.HasSuffix(p.Content, "\n") {
				lines++
			}
		}

		result := FileProcessingResult{
			FileName: p.FileName,
			Bytes:    len(p.Content),
			Lines:    lines,
			SHA256:   hex.EncodeToString(sum[:]),
		}

		logger.DebugContext(ctx, "file processed",
			"file_name", result.FileName,
			"bytes", result.Bytes,
			"lines", result.Lines)

		report(domain.TaskProgress{CurrentStep: "done", TotalSteps: 2, Percentage: 100})
		return json.Marshal(result)
	}
}

// RegisterWorkFuncs binds every known task kind to its work function.
// Called once during startup wiring.
func RegisterWorkFuncs(kinds *Kinds, generator generation.Generator, logger *slog.Logger) error {
	registrations := map[domain.TaskKind]WorkFunc{
		domain.TaskKindGenerateRequirements: NewGenerateRequirementsWorkFunc(generator, logger),
		domain.TaskKindGenerateRTM:          NewGenerateRTMWorkFunc(generator, logger),
		domain.TaskKindGenerateTestCases:    NewGenerateTestCasesWorkFunc(generator, logger),
		domain.TaskKindCoverageAnalysis:     NewCoverageAnalysisWorkFunc(generator, logger),
		domain.TaskKindFileProcessing:       NewFileProcessingWorkFunc(logger),
	}

	for kind, fn := range registrations {
		if err := kinds.Register(kind, fn); err != nil {
			return fmt.Errorf("registering work function for %q: %w", kind, err)
		}
	}
	return nil
}
