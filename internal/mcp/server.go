// Package mcp binds tracelens functionality to the Model Context Protocol
// (MCP) server standard.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tracelens/internal/analysis"
	"tracelens/internal/config"
	"tracelens/internal/models"
	"tracelens/internal/status"
)

// Server defines the MCP capability layer, exposing the analysis operations
// to connected AI agents.
type Server struct {
	cfg      *config.Config
	analyzer *analysis.Analyzer
	statuses status.Store
}

// New creates a new MCP server wrapper
func New(cfg *config.Config, anlz *analysis.Analyzer, statuses status.Store) *Server {
	return &Server{
		cfg:      cfg,
		analyzer: anlz,
		statuses: statuses,
	}
}

// RegisterTools registers the tracelens tools with the MCP server
func (s *Server) RegisterTools(mcpServer *server.MCPServer) {
	// 1. Trigger Analysis Tool
	triggerTool := mcp.NewTool("trigger_experiment_analysis",
		mcp.WithDescription("Runs the full quality analysis for an experiment's traces."),
		mcp.WithString("experiment_id", mcp.Required(), mcp.Description("MLflow experiment ID")),
		mcp.WithString("focus", mcp.Description("Optional focus area for the analysis")),
	)
	mcpServer.AddTool(triggerTool, s.HandleTriggerAnalysis)

	// 2. Analysis Status Tool
	statusTool := mcp.NewTool("get_analysis_status",
		mcp.WithDescription("Returns the status of the latest analysis for an experiment."),
		mcp.WithString("experiment_id", mcp.Required(), mcp.Description("MLflow experiment ID")),
	)
	mcpServer.AddTool(statusTool, s.HandleGetStatus)

	// 3. Summary Tool
	summaryTool := mcp.NewTool("get_experiment_summary",
		mcp.WithDescription("Fetches the stored markdown analysis report for an experiment."),
		mcp.WithString("experiment_id", mcp.Required(), mcp.Description("MLflow experiment ID")),
	)
	mcpServer.AddTool(summaryTool, s.HandleGetSummary)
}

// HandleTriggerAnalysis runs a full analysis synchronously; MCP callers wait
// for the result rather than polling.
func (s *Server) HandleTriggerAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	experimentID, _ := request.Params.Arguments["experiment_id"].(string)
	focus, _ := request.Params.Arguments["focus"].(string)
	if experimentID == "" {
		return mcp.NewToolResultError("experiment_id is required"), nil
	}

	if !s.statuses.TryStart(experimentID) {
		return mcp.NewToolResultError("an analysis for this experiment is already running"), nil
	}

	s.analyzer.RunAsync(ctx, experimentID, focus, 0)

	st, _ := s.statuses.Get(experimentID)
	if st.Status == models.StatusFailed {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %s", st.Message)), nil
	}

	summary, err := s.analyzer.GetSummary(ctx, experimentID)
	if err != nil || !summary.HasSummary {
		return mcp.NewToolResultText("Analysis completed but no stored summary was found."), nil
	}

	return mcp.NewToolResultText(summary.Content), nil
}

// HandleGetStatus reports the latest analysis status for an experiment.
func (s *Server) HandleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	experimentID, _ := request.Params.Arguments["experiment_id"].(string)
	if experimentID == "" {
		return mcp.NewToolResultError("experiment_id is required"), nil
	}

	st, ok := s.statuses.Get(experimentID)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("No analysis found for experiment %s.", experimentID)), nil
	}

	report := fmt.Sprintf("Experiment %s: %s", experimentID, st.Status)
	if st.Message != "" {
		report += fmt.Sprintf(" (%s)", st.Message)
	}
	return mcp.NewToolResultText(report), nil
}

// HandleGetSummary fetches the stored markdown report.
func (s *Server) HandleGetSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	experimentID, _ := request.Params.Arguments["experiment_id"].(string)
	if experimentID == "" {
		return mcp.NewToolResultError("experiment_id is required"), nil
	}

	summary, err := s.analyzer.GetSummary(ctx, experimentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load summary: %v", err)), nil
	}
	if !summary.HasSummary {
		return mcp.NewToolResultText(fmt.Sprintf("No stored analysis exists for experiment %s.", experimentID)), nil
	}

	return mcp.NewToolResultText(summary.Content), nil
}
