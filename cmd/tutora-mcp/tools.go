package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

const toolSolveMath = "solve_math"

// Resolver is the slice of the coordinator the tool needs.
type Resolver interface {
	Resolve(ctx context.Context, q solver.Question) (solver.Solution, error)
}

// SolveInput is the solve_math argument object.
type SolveInput struct {
	Question string `json:"question" jsonschema:"the math problem, in plain text or LaTeX"`
	Language string `json:"language,omitempty" jsonschema:"fr, ar or tn; defaults to fr"`
}

func solveMath(resolver Resolver) func(context.Context, *mcp.CallToolRequest, SolveInput) (*mcp.CallToolResult, solver.Solution, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SolveInput) (*mcp.CallToolResult, solver.Solution, error) {
		text := strings.TrimSpace(in.Question)
		if text == "" {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "question is required"}},
			}, solver.Solution{}, nil
		}
		sol, err := resolver.Resolve(ctx, solver.Question{
			ID:       uuid.Must(uuid.NewV7()).String(),
			Text:     text,
			Modality: solver.ModalityText,
			Language: solver.Language(in.Language),
		})
		if err != nil {
			return nil, solver.Solution{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: formatSolution(sol)}},
		}, sol, nil
	}
}

// formatSolution renders steps as numbered Markdown for clients that only show text.
func formatSolution(sol solver.Solution) string {
	var b strings.Builder
	for i, st := range sol.Steps {
		fmt.Fprintf(&b, "%d. **%s**\n%s\n", i+1, st.Title, st.Explanation)
		if st.Math != "" {
			fmt.Fprintf(&b, "$$%s$$\n", st.Math)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "=> %s\n\n_source: %s, confidence: %d_", sol.FinalAnswer, sol.Source, sol.Confidence)
	return b.String()
}
