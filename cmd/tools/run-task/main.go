// Package main implements the run-task CLI for invoking a job directly,
// bypassing the Lambda shim and the in-process triggers.
//
// It is meant for local development, manual backfills, and operational
// debugging. Runs go through the same Runner as production, so they take the
// job lock and write job_history.
//
// Usage:
//
//	go run ./cmd/tools/run-task --task=alerts
//	go run ./cmd/tools/run-task --task=weather_archive --reference-time=2026-01-15T04:00:00Z
//	go run ./cmd/tools/run-task --dry-run --task=vegetation_indices
//	go run ./cmd/tools/run-task --list
//
// Configuration comes from the environment (or a .env file), exactly as for
// the service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agroalerts/internal/app"
	"agroalerts/internal/config"
	"agroalerts/internal/scheduler"
)

var taskDescriptions = map[scheduler.TaskType]string{
	scheduler.TaskAlerts:            "Derive frost and drought alerts for every field and publish changes",
	scheduler.TaskWeatherArchive:    "Copy recent archived daily weather into weather_archive",
	scheduler.TaskVegetation:        "Collect cloud-filtered vegetation indices for every field polygon",
	scheduler.TaskCurrentConditions: "Snapshot current conditions at each field's weather point",
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., alerts)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T03:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: run-task [flags]\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available task types.\n")
	}
	flag.Parse()

	if *listFlag {
		printAvailableTasks()
		return
	}

	payload, err := buildPayload(*taskFlag, *refTimeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	if *dryRunFlag {
		data, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(data))
		return
	}

	if err := execute(payload); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildPayload validates the flags and returns the payload the Lambda would
// receive.
func buildPayload(task, refTime string) (scheduler.Payload, error) {
	if task == "" {
		return scheduler.Payload{}, fmt.Errorf("--task is required")
	}
	taskType := scheduler.TaskType(task)
	if _, ok := taskDescriptions[taskType]; !ok {
		return scheduler.Payload{}, fmt.Errorf("unknown task type %q", task)
	}

	payload := scheduler.Payload{Task: taskType}
	if refTime != "" {
		t, err := time.Parse(time.RFC3339, refTime)
		if err != nil {
			return scheduler.Payload{}, fmt.Errorf("invalid --reference-time %q: expected RFC3339", refTime)
		}
		t = t.UTC()
		payload.ReferenceTime = &t
	}
	return payload, nil
}

func execute(payload scheduler.Payload) error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = *payload.ReferenceTime
	}

	result, err := a.Runner.Run(ctx, payload.Task, now)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	return nil
}

func printAvailableTasks() {
	fmt.Fprintf(os.Stderr, "Available task types:\n\n")
	for _, t := range scheduler.Tasks {
		fmt.Fprintf(os.Stderr, "  %-20s  %s\n", string(t), taskDescriptions[t])
	}
	fmt.Fprintln(os.Stderr)
}
