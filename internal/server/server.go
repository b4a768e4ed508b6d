package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"tracelens/internal/analysis"
	"tracelens/internal/analysis/discovery"
	"tracelens/internal/analysis/session"
	"tracelens/internal/clients/mlflow"
	"tracelens/internal/config"
	"tracelens/internal/db"
	"tracelens/internal/output"
	"tracelens/internal/status"
	"tracelens/pkg/llm"
)

// historyAdapter bridges the analyzer's history interface onto the SQLite layer.
type historyAdapter struct {
	db *db.DB
}

func (h historyAdapter) InsertAnalysis(rec analysis.HistoryRecord) error {
	return h.db.InsertAnalysis(db.AnalysisRecord{
		ID:      rec.ID,
		Scope:   rec.Scope,
		ScopeID: rec.ScopeID,
		Status:  rec.Status,
	})
}

func (h historyAdapter) FinishAnalysis(id, status, errMsg, reportPath, dataPath string) error {
	return h.db.FinishAnalysis(id, status, errMsg, reportPath, dataPath)
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg      *config.Config
	srv      *http.Server
	handler  *Handler
	database *db.DB
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	logger := slog.Default()

	// Initialize clients
	mlflowClient := mlflow.NewClient(cfg.MLflow.URL, cfg.MLflow.Token, cfg.MLflow.GetTimeoutDuration(), logger)
	artifacts := mlflow.NewArtifactManager(mlflowClient, logger)

	// Initialize LLM provider
	llmCfg := cfg.LLM
	if llmCfg.ProviderType() == "databricks" && llmCfg.Endpoint == "" {
		llmCfg.Endpoint = cfg.MLflow.URL
	}
	llmProvider, err := llm.NewProvider(llmCfg)
	if err != nil {
		log.Fatalf("Failed to create LLM provider: %v", err)
	}

	// Optional persistence
	var database *db.DB
	var statuses status.Store = status.NewMemoryStore()
	if cfg.DB.Enabled {
		database, err = db.New(cfg.DB.Path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := database.Migrate(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		statuses = status.NewSQLiteStore(database, logger)
	}

	// Initialize the analysis pipeline
	disc := discovery.New(llmProvider, logger,
		discovery.WithThresholds(discovery.PerformanceThresholds{
			CriticalLatencyMs: int64(cfg.Analysis.CriticalLatencyMs),
			HighLatencyMs:     int64(cfg.Analysis.HighLatencyMs),
			SlowToolMs:        int64(cfg.Analysis.SlowToolThresholdMs),
		}),
		discovery.WithTokenBudget(cfg.Analysis.PromptTokenBudget),
		discovery.WithSampleSizes(cfg.Analysis.UnderstandingSample, cfg.Analysis.CategorySample),
	)

	anlz := analysis.NewAnalyzer(mlflowClient, disc, artifacts, statuses, logger).
		WithSampleSize(cfg.Analysis.TraceSampleSize).
		WithMaxSchemas(cfg.Analysis.MaxSchemas)
	if cfg.Reports.Enabled {
		anlz = anlz.WithLocalReports(output.NewMarkdownWriter(cfg.Reports.OutputDir))
	}
	if database != nil {
		anlz = anlz.WithHistory(historyAdapter{database})
	}

	sessAnlz := session.NewAnalyzer(llmProvider, artifacts, logger)

	// Create handler
	handler := NewHandler(cfg, anlz, sessAnlz, statuses, logger)

	// Create router
	router := SetupRouter(handler)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		srv:      srv,
		handler:  handler,
		database: database,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() {
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if s.database != nil {
		_ = s.database.Close()
	}

	os.Exit(0)
}
