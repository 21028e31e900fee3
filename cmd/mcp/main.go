package main

import (
	"context"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/documcp/api/internal/config"
	"github.com/documcp/api/internal/llm"
	"github.com/documcp/api/internal/mcpserver"
	"github.com/documcp/api/internal/orchestrator"
	"github.com/documcp/api/internal/templates"
)

func main() {
	ctx := context.Background()

	// stdout carries the MCP protocol; all logging goes to stderr.
	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	logger.Info("DocuMCP MCP server starting...",
		zap.String("version", "0.1.0"),
		zap.String("model_endpoint", cfg.LMStudioURL),
	)

	tracker := llm.NewTracker(cfg.HealthCooldown)
	tracker.OnStateChange = func(from, to llm.ConnState) {
		logger.Info("model connection state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	policy := llm.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.BaseBackoff = cfg.RetryBaseBackoff

	client := llm.NewClient(cfg.LMStudioURL, cfg.LMStudioModel, policy, tracker, logger)

	probeCtx, cancelProbe := context.WithTimeout(ctx, 10*time.Second)
	if modelID, err := client.Probe(probeCtx); err != nil {
		logger.Warn("model endpoint not reachable at startup", zap.Error(err))
	} else {
		logger.Info("connected to model endpoint", zap.String("model_id", modelID))
	}
	cancelProbe()

	orch := orchestrator.New(client, templates.NewBuiltin(), tracker, nil, logger, orchestrator.Config{
		GlobalTimeout:  cfg.GlobalTimeout,
		PerTypeTimeout: cfg.PerTypeTimeout,
	})

	svc := mcpserver.New(orch, logger)

	logger.Info("serving MCP over stdio")
	if err := server.ServeStdio(svc.Server()); err != nil {
		logger.Fatal("MCP server exited", zap.Error(err))
	}
}
