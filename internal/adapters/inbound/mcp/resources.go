package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const detectionURI = "dsnscan://detection"

func registerResources(s *server.MCPServer, projectPath string, detector Detector) {
	s.AddResource(
		mcplib.NewResource(
			detectionURI,
			"DSN Detection",
			mcplib.WithResourceDescription("Every Sentry DSN found in the project, served from cache while it is still valid"),
			mcplib.WithMIMEType("application/json"),
		),
		handleDetectionResource(projectPath, detector),
	)
}

func handleDetectionResource(projectPath string, detector Detector) server.ResourceHandlerFunc {
	return func(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		root, err := detector.ProjectRoot(projectPath)
		if err != nil {
			return nil, fmt.Errorf("resolving project root failed: %w", err)
		}
		res, err := detector.LookupDetection(ctx, projectPath)
		if err != nil {
			return nil, fmt.Errorf("detection failed: %w", err)
		}

		data, err := json.MarshalIndent(detectAllResponse{Root: root, DetectionResult: res}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling detection: %w", err)
		}

		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      detectionURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}
