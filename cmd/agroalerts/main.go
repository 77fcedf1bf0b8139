// Package main is the entry point for the agroalerts service.
//
// It serves the HTTP API and, when SCHEDULE_ENABLED is set, runs the daily
// and hourly job triggers in the same process. Both stop on SIGINT or
// SIGTERM: the HTTP server drains in-flight requests and the triggers let a
// running job observe the cancelled context.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"agroalerts/internal/api/handlers"
	"agroalerts/internal/app"
	"agroalerts/internal/config"
	"agroalerts/internal/core"
	"agroalerts/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("agroalerts starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"schedule_enabled", cfg.Schedule.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newServer(cfg, logger, a)
	if err != nil {
		return err
	}

	triggers, err := newTriggers(cfg.Schedule, a.Runner, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	for _, t := range triggers {
		t := t
		g.Go(func() error { return t.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("agroalerts stopped cleanly")
	return nil
}

func newServer(cfg *config.Config, logger *slog.Logger, a *app.App) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = a.Metrics
	srv.MetricsHandler = promhttp.Handler()
	srv.HealthProbes = []core.HealthProbe{core.DatabaseProbe(a.Pool)}

	forecastHandler := handlers.NewForecastHandler(a.Weather, a.Projection, srv.Validator, logger)
	alertHandler := handlers.NewAlertHandler(a.Fields, a.Alerts, srv.Validator, nil, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { r.Route("/forecast", forecastHandler.RegisterRoutes) },
		func(r chi.Router) { r.Route("/fields", alertHandler.RegisterRoutes) },
	)

	srv.MountRoutes()
	return srv, nil
}

func newTriggers(cfg config.ScheduleConfig, runner scheduler.TaskRunner, logger *slog.Logger) ([]*scheduler.Trigger, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	daily := []struct {
		task scheduler.TaskType
		at   string
	}{
		{scheduler.TaskAlerts, cfg.AlertsAt},
		{scheduler.TaskWeatherArchive, cfg.WeatherArchiveAt},
		{scheduler.TaskVegetation, cfg.VegetationAt},
	}

	triggers := make([]*scheduler.Trigger, 0, len(daily)+1)
	for _, d := range daily {
		t, err := scheduler.NewDailyTrigger(d.task, d.at, runner, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("scheduling %s: %w", d.task, err)
		}
		triggers = append(triggers, t)
	}

	conditions, err := scheduler.NewIntervalTrigger(scheduler.TaskCurrentConditions, cfg.ConditionsInterval, runner, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("scheduling %s: %w", scheduler.TaskCurrentConditions, err)
	}
	return append(triggers, conditions), nil
}
