package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/openkraft/dsnscan/internal/domain"
)

// Detector is the slice of application.DetectService the server exposes.
type Detector interface {
	DetectDsn(ctx context.Context, cwd string) (*domain.DetectedDsn, error)
	DetectAllDsns(ctx context.Context, cwd string) (*domain.DetectionResult, error)
	LookupDetection(ctx context.Context, cwd string) (*domain.DetectionResult, error)
	ProjectRoot(cwd string) (string, error)
}

// NewDSNScanMCPServer creates an MCP server with the dsnscan tools and
// resources registered. Relative tool paths resolve against projectPath.
func NewDSNScanMCPServer(projectPath string, detector Detector) *server.MCPServer {
	s := server.NewMCPServer(
		"dsnscan",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	registerTools(s, projectPath, detector)
	registerResources(s, projectPath, detector)

	return s
}
