// Package mcpadapter exposes the slide query engine as MCP tools.
package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/core/usecase"
)

const (
	serverName   = "slide-rag-assistant"
	toolAskSlide = "ask_slides"
)

func NewServer(version string, query ports.QueryService, formatter usecase.ResponseFormatter, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTool(askSlidesTool(), handleAskSlides(query, formatter, logger))
	return s
}

func askSlidesTool() mcp.Tool {
	return mcp.NewTool(toolAskSlide,
		mcp.WithDescription("Answer a question about the indexed slide deck using slide text and slide images. Returns the answer, numbered sources and image links."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural-language question about the slides"),
		),
	)
}

func handleAskSlides(query ports.QueryService, formatter usecase.ResponseFormatter, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("question parameter is required"), nil
		}

		result, err := query.Answer(ctx, strings.TrimSpace(question))
		if err != nil {
			logger.WarnContext(ctx, "mcp_tool_failed", "tool", toolAskSlide, "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatter.Format(result).Markdown()), nil
	}
}
