// Copyright (c) 2026, the fetcharr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fetcharr/fetcharr/internal/api"
	"github.com/fetcharr/fetcharr/internal/api/handlers"
	"github.com/fetcharr/fetcharr/internal/buildinfo"
	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/domain"
	"github.com/fetcharr/fetcharr/internal/downloads"
	"github.com/fetcharr/fetcharr/internal/metrics"
	"github.com/fetcharr/fetcharr/internal/providers/jackett"
	"github.com/fetcharr/fetcharr/internal/resolver"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "fetcharr",
		Short: "Torrent search aggregator with magnet link recovery",
		Long: `fetcharr - Searches Jackett indexers, deduplicates the results and
recovers magnet links from opaque download redirects.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/fetcharr/ or %APPDATA%\\fetcharr\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, logPath)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of fetcharr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/fetcharr/config.toml
- Windows: %APPDATA%\fetcharr\config.toml

You can specify either a directory path or a direct file path:
- Directory: fetcharr generate-config --config-dir /path/to/config/
- File: fetcharr generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	logPath   string
}

func NewApplication(configDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.logPath != "" {
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	log.Info().
		Str("version", buildinfo.Version).
		Str("configDir", cfg.GetConfigDir()).
		Msg("Starting fetcharr")

	var registry *prometheus.Registry
	var stats *metrics.Metrics
	if cfg.Config.MetricsEnabled {
		registry = prometheus.NewRegistry()
		stats = metrics.New(registry)
	}

	jackettClient, err := jackett.NewClient(
		cfg.Config.Jackett.URL,
		cfg.Config.Jackett.APIKey,
		time.Duration(cfg.Config.Jackett.TimeoutSeconds)*time.Second,
		log.Logger.With().Str("module", "jackett").Logger(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Jackett client, set jackett.url and jackett.apiKey in the config")
	}

	walker := resolver.New(resolver.Options{
		MaxHops:    cfg.Config.Resolver.MaxHops,
		HopTimeout: time.Duration(cfg.Config.Resolver.HopTimeoutSeconds) * time.Second,
		Logger:     log.Logger.With().Str("module", "resolver").Logger(),
	})
	cachedResolver := resolver.NewCached(walker, resolver.CacheOptions{
		Size:   cfg.Config.Resolver.CacheSize,
		TTL:    time.Duration(cfg.Config.Resolver.CacheTTLMinutes) * time.Minute,
		Logger: log.Logger.With().Str("module", "resolver").Logger(),
		Stats:  statsOrNil(stats),
	})

	searchService := jackett.NewService(jackett.ServiceOptions{
		Client:     jackettClient,
		Resolver:   cachedResolver,
		MaxResults: cfg.Config.Jackett.MaxResults,
		Stats:      searchStatsOrNil(stats),
		Logger:     log.Logger.With().Str("module", "search").Logger(),
	})

	// The result cap is the one search setting that can take effect
	// without a restart.
	cfg.RegisterReloadListener(func(conf *domain.Config) {
		searchService.SetMaxResults(conf.Jackett.MaxResults)
	})

	handoff := downloads.New(cfg.Config.QBittorrent, log.Logger.With().Str("module", "downloads").Logger())
	if !handoff.Enabled() {
		log.Info().Msg("No qBittorrent instance configured, download hand-off disabled")
	}

	httpServer := api.NewServer(&api.Dependencies{
		Config:        cfg.Config,
		Version:       buildinfo.Version,
		SearchService: searchService,
		Handoff:       handoff,
		DownloadStats: downloadStatsOrNil(stats),
		Registry:      registry,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
		log.Debug().Msg("API server ready")
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("Failed to start API server")
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Server shut down")
}

// Typed-nil guards: a nil *metrics.Metrics must become a nil interface so
// the stats hooks stay disabled.
func statsOrNil(m *metrics.Metrics) resolver.Stats {
	if m == nil {
		return nil
	}
	return m
}

func searchStatsOrNil(m *metrics.Metrics) jackett.SearchStats {
	if m == nil {
		return nil
	}
	return m
}

func downloadStatsOrNil(m *metrics.Metrics) handlers.DownloadStats {
	if m == nil {
		return nil
	}
	return m
}
