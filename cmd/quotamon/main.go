package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/avishj/quotamon/alerts"
	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/internal/logging"
	"github.com/avishj/quotamon/monitor"
	"github.com/avishj/quotamon/probe/cli"
	"github.com/avishj/quotamon/probe/guestpass"
	"github.com/avishj/quotamon/probe/httpapi"
	"github.com/avishj/quotamon/server"
	"github.com/avishj/quotamon/telemetry"
	"github.com/avishj/quotamon/usage"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	once := flag.Bool("once", false, "Refresh all sources once, print status and exit")
	serve := flag.Bool("serve", false, "Enable the status HTTP server regardless of configuration")
	listen := flag.String("listen", "", "Status server listen address (overrides configuration)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if *configCheck {
			fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *configCheck {
		fmt.Println("configuration ok")
		return
	}
	if *serve {
		cfg.Server.Enabled = true
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector := telemetry.Noop()
	if cfg.Telemetry.Enabled {
		prometheusCollector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		} else {
			collector = prometheusCollector
		}
	}

	alertEngine, err := alerts.NewEngine(cfg.Alerts, logger, collector)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to compile alert rules")
	}

	mon, err := monitor.New(cfg, logger,
		monitor.WithProbeFactory(config.DriverCLI, cli.NewFactory()),
		monitor.WithProbeFactory(config.DriverHTTP, httpapi.NewFactory()),
		monitor.WithProbeFactory(config.DriverGuestPass, guestpass.NewFactory()),
		monitor.WithTelemetry(collector),
		monitor.WithObserver(alertEngine.Observer()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create monitor")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		mon.RefreshAll(ctx)
		if err := printStatus(mon); err != nil {
			logger.Fatal().Err(err).Msg("failed to render status")
		}
		return
	}

	scanner, err := usage.NewScanner(cfg.Usage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to setup usage scanner")
	}

	if cfg.Server.Enabled {
		srv, err := server.New(cfg.Server.Listen, mon, scanner, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start status server")
		}
		defer srv.Close()
	}

	if err := mon.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("monitor stopped with error")
	}
}

func printStatus(mon *monitor.Monitor) error {
	type line struct {
		ID          string `json:"id"`
		Band        string `json:"band"`
		DisplayText string `json:"display_text,omitempty"`
		LastError   string `json:"last_error,omitempty"`
	}
	lines := make([]line, 0)
	for _, status := range mon.Status() {
		lines = append(lines, line{
			ID:          status.ID,
			Band:        string(status.Band),
			DisplayText: status.DisplayText,
			LastError:   status.LastError,
		})
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(lines)
}
