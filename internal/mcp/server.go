// ABOUTME: MCP server exposing the healthlake administrative triggers and insight reads.
// ABOUTME: Wraps the MCP server around an admin.Service.
package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/healthlake/internal/admin"
)

// Server wraps the MCP server with access to the admin service.
type Server struct {
	mcpServer *mcp.Server
	svc       *admin.Service
}

// NewServer creates a new MCP server over the given service.
func NewServer(svc *admin.Service, version string) (*Server, error) {
	if svc == nil {
		return nil, errors.New("admin service is required")
	}
	if version == "" {
		version = "dev"
	}
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "healthlake",
			Version: version,
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		svc:       svc,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
