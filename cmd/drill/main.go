// Package main provides the drill practice shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/designdrill/internal/apiclient"
	"github.com/ashureev/designdrill/internal/cli"
	"github.com/ashureev/designdrill/internal/config"
	"github.com/ashureev/designdrill/internal/credentials"
	"github.com/ashureev/designdrill/internal/practice"
	"github.com/ashureev/designdrill/internal/surface"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// Version information (populated at build time)
var (
	version   = "dev"
	gitCommit = "unknown"
)

// CLI flags
var (
	configPath  string
	apiURL      string
	bridgeAddr  string
	scenePath   string
	showVersion bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&configPath, "c", "", "Path to the YAML configuration file (shorthand)")
	flag.StringVar(&apiURL, "api", "", "Override backend base URL")
	flag.StringVar(&bridgeAddr, "bridge", "", "Serve the browser canvas on this address (e.g. localhost:5173)")
	flag.StringVar(&scenePath, "scene", "", "Override the .excalidraw scene file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = printUsage
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `drill - system design practice shell

Usage:
  drill [flags]

Flags:
  -c, -config string   Path to the YAML configuration file
  -api string          Override backend base URL
  -bridge string       Serve the browser canvas on this address
  -scene string        Override the .excalidraw scene file
  -version             Show version information

Environment variables (DRILL_API_URL, DRILL_PROFILE, DRILL_BRIDGE_ADDR, ...)
take precedence over the configuration file.
`)
}

func main() {
	flag.Parse()
	if showVersion {
		fmt.Printf("drill %s (%s)\n", version, gitCommit)
		return
	}

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	applyFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags maps command-line overrides onto the environment read by
// config.Load.
func applyFlags() {
	overrides := map[string]string{
		"DRILL_CONFIG":      configPath,
		"DRILL_API_URL":     apiURL,
		"DRILL_BRIDGE_ADDR": bridgeAddr,
		"DRILL_SCENE":       scenePath,
	}
	for key, value := range overrides {
		if value != "" {
			_ = os.Setenv(key, value)
		}
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	creds, err := credentials.NewSQLite(cfg.CredentialsPath, cfg.Profile)
	if err != nil {
		return fmt.Errorf("open credentials: %w", err)
	}
	defer func() {
		if closeErr := creds.Close(); closeErr != nil {
			logger.Error("Failed to close credentials store", "error", closeErr)
		}
	}()

	renderer, err := surface.NewRenderer(cfg.FontPath, 14)
	if err != nil {
		return fmt.Errorf("load export font: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var surf surface.Surface
	if cfg.UsesBridge() {
		bridge := surface.NewBridge(logger)
		defer bridge.Close()
		surf = bridge

		srv := &http.Server{
			Addr:        cfg.BridgeAddr,
			Handler:     bridge.Handler(),
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Canvas bridge listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("canvas bridge: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		fmt.Printf("Open http://%s/ in a browser to draw.\n", cfg.BridgeAddr)
	} else {
		file, err := surface.NewFile(cfg.ScenePath, logger)
		if err != nil {
			return fmt.Errorf("open scene file: %w", err)
		}
		surf = file
		fmt.Printf("Editing %s. Save it from Excalidraw and the shell picks up changes.\n", file.Path())
	}

	var sh *cli.Shell
	client := apiclient.New(cfg.APIBaseURL, creds,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		apiclient.WithLogger(logger),
		apiclient.WithAuthExpiredHook(func() { sh.AuthExpired() }),
	)
	sh = cli.New(cli.Config{
		Client:   client,
		Surface:  surf,
		Renderer: renderer,
		Out:      os.Stdout,
		Logger:   logger,
		Options:  practice.Options{AutosaveInterval: cfg.AutosaveInterval},
	})

	g.Go(func() error {
		// Leaving the shell stops the bridge too.
		defer stop()
		return sh.Run(gctx, os.Stdin)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
