// Command agentmemoryd serves the agent memory subsystem over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goclaw/agentmemory/config"
	"github.com/goclaw/agentmemory/pkg/logger"
	"github.com/goclaw/agentmemory/pkg/telemetry/tracing"
	"github.com/goclaw/agentmemory/pkg/version"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	rateLimiterPruneEvery  = 5 * time.Minute
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")
	watchFlag   = flag.Bool("watch", true, "Reload log level and consolidation settings when the config file changes")

	// CLI overrides
	serverPort        = flag.Int("port", 0, "Override server port")
	logLevel          = flag.String("log-level", "", "Override log level")
	embeddingProvider = flag.String("embedding-provider", "", "Override embedding provider")
	metadataBackend   = flag.String("metadata-backend", "", "Override metadata storage type")
	vectorBackend     = flag.String("vector-backend", "", "Override vector storage type")
	agentID           = flag.String("agent-id", "", "Override the owning agent ID")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	logger.SetGlobal(log)
	defer log.Close()

	if err := run(cfg, loader, log); err != nil {
		log.Error("agentmemoryd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, loader *config.Loader, log logger.Logger) error {
	log.Info("Starting agentmemoryd",
		"version", version.String(),
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        cfg.App.Name,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return errors.Join(err, shutdownTracing(context.Background()))
	}

	var wg sync.WaitGroup
	background := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if a.metrics.Enabled() && cfg.Metrics.Port > 0 {
		background(func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := a.metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server error", "error", err)
			}
		})
	}

	background(func() { a.pruneClients(ctx, log, rateLimiterPruneEvery) })

	if *watchFlag && *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, loader, config.WithErrorHandler(func(err error) {
			log.Warn("Config reload failed", "error", err)
		}))
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			var mu sync.Mutex
			current := config.ExtractHotReloadable(cfg)
			watcher.OnChange(func(next *config.Config) {
				mu.Lock()
				defer mu.Unlock()
				reloaded := config.ExtractHotReloadable(next)
				if !reloaded.Changed(current) {
					return
				}
				a.applyHotReload(log, current, reloaded)
				current = reloaded
			})
			background(func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("Config watcher stopped", "error", err)
				}
			})
			defer watcher.Stop()
		}
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrChan <- err
		}
	}()
	a.health.SetReady(true)

	log.Info("agentmemoryd is running",
		"addr", a.server.Addr(),
		"embedding", cfg.Embedding.Provider,
		"metadata", cfg.Storage.Metadata.Type,
		"vector", cfg.Storage.Vector.Type,
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case runErr = <-serverErrChan:
		log.Error("HTTP server error", "error", runErr)
	}
	a.health.SetReady(false)
	cancel()

	timeout := cfg.Server.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}
	wg.Wait()

	if err := a.close(); err != nil {
		log.Error("Error closing storage", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("agentmemoryd stopped gracefully")
	return runErr
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *embeddingProvider != "" {
		overrides["embedding.provider"] = *embeddingProvider
	}
	if *metadataBackend != "" {
		overrides["storage.metadata.type"] = *metadataBackend
	}
	if *vectorBackend != "" {
		overrides["storage.vector.type"] = *vectorBackend
	}
	if *agentID != "" {
		overrides["memory.agent_id"] = *agentID
	}

	return overrides
}

func printVersion() {
	fmt.Printf("agentmemoryd - agent memory service\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("agentmemoryd - working, semantic, episodic and procedural memory for LLM agents\n\n")
	fmt.Printf("Usage: agentmemoryd [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  agentmemoryd                                         # Run with default config\n")
	fmt.Printf("  agentmemoryd -config config.yaml                     # Use specific config file\n")
	fmt.Printf("  agentmemoryd -metadata-backend sqlite -port 9090     # Override specific options\n")
	fmt.Printf("  agentmemoryd -version                                # Print version info\n")
}
