// Package main provides the entry point for the tracelens MCP (Model Context
// Protocol) server.
package main

import (
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"tracelens/internal/analysis"
	"tracelens/internal/analysis/discovery"
	"tracelens/internal/clients/mlflow"
	"tracelens/internal/config"
	mcpsrv "tracelens/internal/mcp"
	"tracelens/internal/output"
	"tracelens/internal/status"
	"tracelens/pkg/llm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.Default()

	// Initialize the minimal set of collaborators required to run the MCP tools.
	mlflowClient := mlflow.NewClient(cfg.MLflow.URL, cfg.MLflow.Token, cfg.MLflow.GetTimeoutDuration(), logger)
	artifacts := mlflow.NewArtifactManager(mlflowClient, logger)

	llmCfg := cfg.LLM
	if llmCfg.ProviderType() == "databricks" && llmCfg.Endpoint == "" {
		llmCfg.Endpoint = cfg.MLflow.URL
	}
	llmProvider, err := llm.NewProvider(llmCfg)
	if err != nil {
		log.Fatalf("Failed to create LLM provider: %v", err)
	}

	statuses := status.NewMemoryStore()
	disc := discovery.New(llmProvider, logger)
	anlz := analysis.NewAnalyzer(mlflowClient, disc, artifacts, statuses, logger).
		WithSampleSize(cfg.Analysis.TraceSampleSize).
		WithMaxSchemas(cfg.Analysis.MaxSchemas)
	if cfg.Reports.Enabled {
		anlz = anlz.WithLocalReports(output.NewMarkdownWriter(cfg.Reports.OutputDir))
	}

	// Initialize the core MCP server instance.
	s := server.NewMCPServer(
		"tracelens-mcp",
		"1.0.0",
	)

	// Bind tracelens tools (trigger, status, summary) to the MCP server.
	wrapper := mcpsrv.New(cfg, anlz, statuses)
	wrapper.RegisterTools(s)

	slog.Info("tracelens MCP server listening on stdio...")
	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
