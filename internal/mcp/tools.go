// ABOUTME: MCP tool implementations for pipeline triggers, training, scoring and insight reads.
// ABOUTME: Trigger tools return the same structured JobResults as the CLI.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/healthlake/internal/anomaly"
	"github.com/harperreed/healthlake/internal/baseline"
	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/storage"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "run_hourly",
		Description: "Run the rollup, assemble and enrich stages now",
	}, s.handleRunHourly)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "detect_changes",
		Description: "Scan raw tables for recent inserts and queue recompute signals",
	}, s.handleDetectChanges)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "train_baselines",
		Description: "Retrain population baselines from the training corpus",
	}, s.handleTrainBaselines)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "train_correlations",
		Description: "Retrain behavior-outcome correlations for one user, or every user when user_id is empty",
	}, s.handleTrainCorrelations)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "score_value",
		Description: "Score one observed value (glucose, heart_rate, hrv) against population baselines",
	}, s.handleScoreValue)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_snapshot",
		Description: "Get the current daily feature snapshot for a user and date",
	}, s.handleGetSnapshot)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_correlations",
		Description: "List current behavior-outcome correlations ranked by strength",
	}, s.handleListCorrelations)
}

// Tool input/output types

type emptyInput struct{}

type jobsOutput struct {
	Results []models.JobResult `json:"results"`
	Success bool               `json:"success"`
}

type trainBaselinesInput struct {
	Regenerate bool     `json:"regenerate,omitempty" jsonschema:"replace the training corpus with a fresh synthetic one"`
	Subjects   int      `json:"subjects,omitempty" jsonschema:"synthetic subjects to generate (default 20)"`
	Days       int      `json:"days,omitempty" jsonschema:"synthetic days per subject (default 7)"`
	Signals    []string `json:"signals,omitempty" jsonschema:"signals to train; all when empty"`
}

type trainBaselinesOutput struct {
	Result       models.JobResult `json:"result"`
	ModelVersion string           `json:"model_version,omitempty"`
	Generated    int              `json:"generated"`
	Baselines    int              `json:"baselines"`
}

type trainCorrelationsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"user to train; every user with surveys when empty"`
}

type trainCorrelationsOutput struct {
	Result       models.JobResult      `json:"result"`
	Correlations []*models.Correlation `json:"correlations"`
}

type scoreInput struct {
	Signal  string  `json:"signal" jsonschema:"signal name: glucose, heart_rate or hrv"`
	Value   float64 `json:"value" jsonschema:"observed value"`
	Stratum string  `json:"stratum,omitempty" jsonschema:"stratum key, e.g. hour of day 0-23 or a scenario"`
	Pattern string  `json:"pattern,omitempty" jsonschema:"stratification pattern: hourly (default) or scenario"`
}

type snapshotInput struct {
	UserID string `json:"user_id" jsonschema:"user id"`
	Date   string `json:"date" jsonschema:"local date YYYY-MM-DD"`
}

type listCorrelationsInput struct {
	UserID          string `json:"user_id,omitempty" jsonschema:"filter by user"`
	SignificantOnly bool   `json:"significant_only,omitempty" jsonschema:"only significant findings"`
	ActionableOnly  bool   `json:"actionable_only,omitempty" jsonschema:"only actionable findings"`
	MinSampleSize   int    `json:"min_sample_size,omitempty" jsonschema:"minimum joined days"`
	Limit           int    `json:"limit,omitempty" jsonschema:"max results (default 20)"`
}

// Tool handlers

func (s *Server) handleRunHourly(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	results := s.svc.RunHourly(ctx)
	out := jobsOutput{Results: results, Success: true}
	for _, r := range results {
		out.Success = out.Success && r.Success
	}
	return nil, out, nil
}

func (s *Server) handleDetectChanges(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	return nil, s.svc.DetectChanges(ctx), nil
}

func (s *Server) handleTrainBaselines(ctx context.Context, req *mcp.CallToolRequest, input trainBaselinesInput) (*mcp.CallToolResult, any, error) {
	res, job := s.svc.TrainBaselines(ctx, baseline.TrainOptions{
		Regenerate: input.Regenerate,
		Subjects:   input.Subjects,
		Days:       input.Days,
		Signals:    input.Signals,
	})
	out := trainBaselinesOutput{Result: job}
	if res != nil {
		out.ModelVersion = res.ModelVersion
		out.Generated = res.Generated
		out.Baselines = len(res.Baselines)
	}
	return nil, out, nil
}

func (s *Server) handleTrainCorrelations(ctx context.Context, req *mcp.CallToolRequest, input trainCorrelationsInput) (*mcp.CallToolResult, any, error) {
	var (
		corrs []*models.Correlation
		job   models.JobResult
	)
	if input.UserID == "" {
		corrs, job = s.svc.TrainAllCorrelations(ctx)
	} else {
		corrs, job = s.svc.TrainCorrelations(ctx, input.UserID)
	}
	return nil, trainCorrelationsOutput{Result: job, Correlations: corrs}, nil
}

func (s *Server) handleScoreValue(ctx context.Context, req *mcp.CallToolRequest, input scoreInput) (*mcp.CallToolResult, models.AnomalyScore, error) {
	score, err := s.svc.Score(ctx, anomaly.Request{
		Signal:  input.Signal,
		Value:   input.Value,
		Stratum: input.Stratum,
		Pattern: models.PatternType(input.Pattern),
	})
	if err != nil {
		return nil, models.AnomalyScore{}, fmt.Errorf("failed to score value: %w", err)
	}
	return nil, *score, nil
}

func (s *Server) handleGetSnapshot(ctx context.Context, req *mcp.CallToolRequest, input snapshotInput) (*mcp.CallToolResult, any, error) {
	if input.UserID == "" || input.Date == "" {
		return nil, nil, fmt.Errorf("user_id and date are required")
	}
	snap, err := s.svc.Snapshot(ctx, input.UserID, input.Date)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return nil, snap, nil
}

func (s *Server) handleListCorrelations(ctx context.Context, req *mcp.CallToolRequest, input listCorrelationsInput) (*mcp.CallToolResult, any, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}
	corrs, err := s.svc.Correlations(ctx, storage.CorrelationFilter{
		UserID:          input.UserID,
		SignificantOnly: input.SignificantOnly,
		ActionableOnly:  input.ActionableOnly,
		MinSampleSize:   input.MinSampleSize,
		Limit:           input.Limit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list correlations: %w", err)
	}
	if len(corrs) == 0 {
		return nil, map[string]interface{}{"message": "No correlations found."}, nil
	}
	return nil, map[string]interface{}{"correlations": corrs}, nil
}
