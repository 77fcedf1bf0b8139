// Package main is the entry point for the job-runner Lambda function.
//
// EventBridge rules invoke it with a scheduler.Payload naming the task and an
// optional reference time. The handler runs the task through the same Runner
// the service process uses, so the job_locks row keeps a manual re-trigger
// from overlapping a scheduled run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"agroalerts/internal/app"
	"agroalerts/internal/config"
	"agroalerts/internal/scheduler"
)

// Handler holds the cold-start dependencies of the Lambda.
type Handler struct {
	runner scheduler.TaskRunner
	now    func() time.Time
	logger *slog.Logger
}

// Handle runs one task and returns the human-readable result line.
func (h *Handler) Handle(ctx context.Context, payload scheduler.Payload) (string, error) {
	now := h.now()
	if payload.ReferenceTime != nil {
		now = *payload.ReferenceTime
	}

	h.logger.InfoContext(ctx, "job-runner invoked",
		"task", string(payload.Task),
		"reference_time", now.UTC().Format(time.RFC3339),
	)

	result, err := h.runner.Run(ctx, payload.Task, now)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

func main() {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("job-runner initializing (cold start)", "version", cfg.Build.Version)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}

	h := &Handler{runner: a.Runner, now: time.Now, logger: logger}
	lambda.Start(h.Handle)
}
