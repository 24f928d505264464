package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gitnexus/gateway/internal/bridge"
)

const (
	healthURI  = "gitnexus://codebase/health"
	contextURI = "gitnexus://codebase/context"
)

// noContextMessage is what gitnexus://codebase/context reads back when no
// browser has pushed a CodebaseContext snapshot yet.
const noContextMessage = "No codebase context is available yet. Open the GitNexus browser extension against your project to populate it."

// registerResources wires the two fixed MCP resources of spec §6. Both are
// always registered; resources/list has no dynamic per-session hook verified
// against this mcp-go version (see DESIGN.md), so a read of the context
// resource with nothing cached returns a short plain-text prompt instead of
// markdown rather than being absent from the list.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		mcp.NewResource(healthURI, "GitNexus health", mcp.WithMIMEType("application/json")),
		s.handleHealthResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(contextURI, "GitNexus codebase context", mcp.WithMIMEType("text/markdown")),
		s.handleContextResource,
	)
}

func (s *Server) handleHealthResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ctxSnapshot := s.bridge.Context()
	connected := s.bridge.Connected()

	status := "disconnected"
	switch {
	case connected && ctxSnapshot != nil:
		status = "healthy"
	case connected:
		status = "no_context"
	}

	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"connection": map[string]any{
			"browser": connected,
			"mode":    string(s.bridge.Mode()),
		},
	}
	if ctxSnapshot != nil {
		body["context"] = map[string]any{
			"project":   ctxSnapshot.ProjectName,
			"files":     ctxSnapshot.Stats.FileCount,
			"functions": ctxSnapshot.Stats.FunctionCount,
		}
	}

	text, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding health resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: healthURI, MIMEType: "application/json", Text: string(text)},
	}, nil
}

func (s *Server) handleContextResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	snapshot := s.bridge.Context()
	if snapshot == nil {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: contextURI, MIMEType: "text/plain", Text: noContextMessage},
		}, nil
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: contextURI, MIMEType: "text/markdown", Text: renderContextMarkdown(snapshot)},
	}, nil
}

// renderContextMarkdown deterministically renders a CodebaseContext
// snapshot into the document shape of spec §6: title, Statistics,
// Hotspots, Project Structure, then a canned Tools and Graph Schema
// section naming the fixed 15-tool catalogue.
func renderContextMarkdown(ctx *bridge.CodebaseContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", ctx.ProjectName)

	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- Files: %d\n", ctx.Stats.FileCount)
	fmt.Fprintf(&b, "- Functions: %d\n", ctx.Stats.FunctionCount)
	fmt.Fprintf(&b, "- Classes: %d\n", ctx.Stats.ClassCount)
	fmt.Fprintf(&b, "- Interfaces: %d\n", ctx.Stats.InterfaceCount)
	fmt.Fprintf(&b, "- Methods: %d\n\n", ctx.Stats.MethodCount)

	b.WriteString("## Hotspots\n\n")
	if len(ctx.Hotspots) == 0 {
		b.WriteString("_No hotspots reported._\n\n")
	} else {
		for _, h := range ctx.Hotspots {
			fmt.Fprintf(&b, "- %s (%s) — %d connections — %s\n", h.Name, h.Type, h.Connections, h.FilePath)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Project Structure\n\n")
	b.WriteString("```\n")
	b.WriteString(ctx.FolderTree)
	if !strings.HasSuffix(ctx.FolderTree, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")

	b.WriteString("## Tools\n\n")
	b.WriteString("context, search, cypher, grep, read, explore, overview, impact, highlight, diff, deep_dive, review_file, trace_flow, find_similar, test_impact\n\n")

	b.WriteString("## Graph Schema\n\n")
	b.WriteString("Nodes: File, Symbol (function/method/class/interface), Process, Cluster. Edges: CALLS, IMPLEMENTS, CONTAINS, BELONGS_TO.\n")

	return b.String()
}
