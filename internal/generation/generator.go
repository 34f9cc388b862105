package generation

import "context"

// Generator defines the interface for the AI operations the platform
// offers: turning uploaded specification documents into requirements,
// requirements into a traceability matrix, the matrix into test cases,
// and analyzing how well the test cases cover the requirements. This
// interface is the boundary between the application core and external
// LLM services.
type Generator interface {
	// ExtractRequirements derives a structured requirements document
	// from raw specification text.
	ExtractRequirements(ctx context.Context, document string) (*RequirementsResult, error)

	// GenerateRTM produces a requirements traceability matrix from a
	// requirements document.
	GenerateRTM(ctx context.Context, requirements string) (*RTMResult, error)

	// GenerateTestCases produces test cases from a requirements
	// traceability matrix.
	GenerateTestCases(ctx context.Context, rtm string) (*TestCasesResult, error)

	// AnalyzeCoverage scores how completely the test cases in the RTM
	// cover the requirements.
	AnalyzeCoverage(ctx context.Context, requirements, rtm string) (*CoverageResult, error)
}

// RequirementsResult is the outcome of requirements extraction.
type RequirementsResult struct {
	// Markdown is the generated requirements document.
	Markdown string `json:"markdown"`
}

// RTMResult is the outcome of traceability matrix generation.
type RTMResult struct {
	// Markdown is the generated requirements traceability matrix.
	Markdown string `json:"markdown"`
}

// TestCasesResult is the outcome of test case generation.
type TestCasesResult struct {
	// Markdown is the generated test case document.
	Markdown string `json:"markdown"`
}

// CoverageResult is the outcome of a coverage analysis run.
type CoverageResult struct {
	// Score is the overall requirements coverage in [0, 1].
	Score float64 `json:"score"`

	// Summary is a short human-readable assessment.
	Summary string `json:"summary"`

	// UncoveredRequirements lists requirement identifiers with no
	// matching test case.
	UncoveredRequirements []string `json:"uncovered_requirements,omitempty"`
}
