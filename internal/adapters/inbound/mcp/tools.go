package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/openkraft/dsnscan/internal/domain"
)

func registerTools(s *server.MCPServer, projectPath string, detector Detector) {
	// 1. dsnscan_detect
	s.AddTool(
		mcplib.NewTool("dsnscan_detect",
			mcplib.WithDescription("Returns the Sentry DSN the project uses, picked by source priority (code, .env files, SENTRY_DSN)"),
			mcplib.WithString("path", mcplib.Description("Directory to detect from, relative to the project (default: project root)")),
		),
		handleDetect(projectPath, detector),
	)

	// 2. dsnscan_detect_all
	s.AddTool(
		mcplib.NewTool("dsnscan_detect_all",
			mcplib.WithDescription("Returns every Sentry DSN found in the project with a fingerprint of the projects they point to"),
			mcplib.WithString("path", mcplib.Description("Directory to detect from, relative to the project (default: project root)")),
			mcplib.WithBoolean("fresh", mcplib.Description("Ignore the cached detection and rescan")),
		),
		handleDetectAll(projectPath, detector),
	)
}

type detectResponse struct {
	Root string              `json:"root"`
	Dsn  *domain.DetectedDsn `json:"dsn"`
}

type detectAllResponse struct {
	Root string `json:"root"`
	*domain.DetectionResult
}

func handleDetect(projectPath string, detector Detector) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		dir := resolvePath(projectPath, request)
		root, err := detector.ProjectRoot(dir)
		if err != nil {
			return errorResult(fmt.Sprintf("resolving project root failed: %v", err)), nil
		}
		d, err := detector.DetectDsn(ctx, dir)
		if err != nil {
			return errorResult(detectFailure(err)), nil
		}
		return jsonResult(detectResponse{Root: root, Dsn: d})
	}
}

func handleDetectAll(projectPath string, detector Detector) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		dir := resolvePath(projectPath, request)
		root, err := detector.ProjectRoot(dir)
		if err != nil {
			return errorResult(fmt.Sprintf("resolving project root failed: %v", err)), nil
		}

		detect := detector.LookupDetection
		if fresh, _ := request.GetArguments()["fresh"].(bool); fresh {
			detect = detector.DetectAllDsns
		}
		res, err := detect(ctx, dir)
		if err != nil {
			return errorResult(detectFailure(err)), nil
		}
		return jsonResult(detectAllResponse{Root: root, DetectionResult: res})
	}
}

// resolvePath joins the optional "path" argument onto projectPath.
func resolvePath(projectPath string, request mcplib.CallToolRequest) string {
	p, _ := request.GetArguments()["path"].(string)
	if p == "" {
		return projectPath
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectPath, p)
}

func detectFailure(err error) string {
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Error()
	}
	return fmt.Sprintf("detection failed: %v", err)
}

// jsonResult marshals v to JSON and returns it as a text content result.
func jsonResult(v interface{}) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(string(data))},
	}, nil
}

// errorResult returns a tool result that indicates an error occurred.
func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(msg)},
		IsError: true,
	}
}
