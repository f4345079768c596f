// ABOUTME: MCP resource implementations for learned insight state.
// ABOUTME: Provides healthlake://baselines and healthlake://correlations resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/healthlake/internal/storage"
)

const (
	baselinesURI    = "healthlake://baselines"
	correlationsURI = "healthlake://correlations"
)

func (s *Server) registerResources() {
	// healthlake://baselines - every current population baseline
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         baselinesURI,
		Name:        "Population Baselines",
		Description: "Current population baselines for every signal and stratum",
		MIMEType:    "application/json",
	}, s.handleBaselinesResource)

	// healthlake://correlations - top significant findings across users
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         correlationsURI,
		Name:        "Significant Correlations",
		Description: "Top 50 significant behavior-outcome correlations across users",
		MIMEType:    "application/json",
	}, s.handleCorrelationsResource)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) handleBaselinesResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	baselines, err := s.svc.Baselines(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	return jsonResource(baselinesURI, map[string]interface{}{
		"baselines": baselines,
		"count":     len(baselines),
	})
}

func (s *Server) handleCorrelationsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	corrs, err := s.svc.Correlations(ctx, storage.CorrelationFilter{SignificantOnly: true, Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("failed to list correlations: %w", err)
	}
	return jsonResource(correlationsURI, map[string]interface{}{
		"correlations": corrs,
		"count":        len(corrs),
	})
}
