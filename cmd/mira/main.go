package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirahq/mira/internal/balancer"
	"github.com/mirahq/mira/internal/coord"
	"github.com/mirahq/mira/internal/server"
	"github.com/mirahq/mira/internal/status"
	"github.com/mirahq/mira/pkg/config"
)

var (
	configPath string
	logLevel   string
	version    = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "mira",
	Short: "Mira - matchmaking relay for real-time game lobbies",
	Long: `Mira is a reverse-proxying matchmaker and relay. A worker node hosts
game rooms and relays traffic between their members; a balancer node sits in
front of a cluster of workers and redirects clients to them.`,
	Version: version,
	Run:     runWorker,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a game node",
	Long:  "Start a worker node that hosts rooms and relays game traffic",
	Run:   runWorker,
}

var balancerCmd = &cobra.Command{
	Use:   "balancer",
	Short: "Start a matchmaking front door",
	Long:  "Start a balancer node that redirects clients onto the cluster's workers",
	Run:   runBalancer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Mira v%s\n", version)
		fmt.Println("Matchmaking relay for real-time game lobbies")
		fmt.Println("Built with Go")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(balancerCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration and builds the logger and coordination store
// both node kinds share.
func setup() (*config.Config, *slog.Logger, coord.Store, func()) {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	var logWriter io.Writer = os.Stdout
	cleanup := func() {}

	if cfg.Server.LogToFile {
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
			os.Exit(1)
		}

		logPath := filepath.Join(logDir, fmt.Sprintf("mira_%d.log", time.Now().Unix()))
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		logWriter = io.MultiWriter(os.Stdout, logFile)
		cleanup = func() { logFile.Close() }
	}

	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store := openStore(cfg, logger)
	return cfg, logger, store, func() {
		store.Close()
		cleanup()
	}
}

// openStore connects to redis when configured, otherwise keeps coordination
// in process memory for standalone nodes.
func openStore(cfg *config.Config, logger *slog.Logger) coord.Store {
	if !cfg.Redis.Enabled {
		logger.Info("using in-memory coordination store")
		return coord.NewMemoryStore()
	}
	store, err := coord.NewRedisStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis", "address", cfg.Redis.Address)
	return store
}

func runWorker(cmd *cobra.Command, args []string) {
	cfg, logger, store, cleanup := setup()
	defer cleanup()

	logger.Info("starting mira worker", "version", version)

	w, err := server.NewWorker(cfg, store, logger)
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}
	go w.Run()

	var statusSrv *status.Server
	if cfg.Status.Enabled {
		statusSrv = status.New(cfg.Server.Name, w, logger)
		go func() {
			if err := statusSrv.Listen(cfg.Status.Port); err != nil {
				logger.Error("status endpoint failed", "error", err)
			}
		}()
	}

	logger.Info("worker running",
		"name", cfg.Server.Name,
		"address", fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
	)

	waitForSignal(logger)

	if statusSrv != nil {
		statusSrv.Shutdown()
	}
	w.Shutdown()
	logger.Info("worker stopped successfully")
}

func runBalancer(cmd *cobra.Command, args []string) {
	cfg, logger, store, cleanup := setup()
	defer cleanup()

	logger.Info("starting mira balancer", "version", version)

	b, err := balancer.New(cfg, store, logger)
	if err != nil {
		logger.Error("failed to create balancer", "error", err)
		os.Exit(1)
	}
	go b.Run()

	logger.Info("balancer running",
		"address", fmt.Sprintf("0.0.0.0:%d", cfg.Balancer.Port),
	)

	waitForSignal(logger)

	b.Shutdown()
	logger.Info("balancer stopped successfully")
}

func waitForSignal(logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
