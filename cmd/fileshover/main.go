package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/marmos91/fileshover/internal/logger"
	"github.com/marmos91/fileshover/pkg/adapter"
	"github.com/marmos91/fileshover/pkg/config"
	"github.com/marmos91/fileshover/pkg/pool"
	"github.com/marmos91/fileshover/pkg/server"
)

const usage = `fileshover - static file server

Usage:
  fileshover [flags]          Serve files from --root
  fileshover init [--force]   Write a default config file

Flags:
`

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		os.Exit(runInit(os.Args[2:]))
	}
	os.Exit(run(os.Args[1:]))
}

// runInit handles "fileshover init".
func runInit(args []string) int {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
	force := flags.BoolP("force", "f", false, "Overwrite an existing config file")
	path := flags.StringP("config", "c", "", "Where to write the file (default: "+config.GetDefaultConfigPath()+")")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	written := *path
	var err error
	if written == "" {
		written, err = config.InitConfig(*force)
	} else {
		err = config.InitConfigToPath(written, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", written)
	return 0
}

// run parses flags, builds every component from the merged configuration
// and serves until SIGINT/SIGTERM.
func run(args []string) int {
	flags := pflag.NewFlagSet("fileshover", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.StringP("root", "r", "", "Directory to serve (required unless set in the config file)")
	flags.IntP("port", "p", config.DefaultHTTPPort, "TCP port to listen on (0 = ephemeral)")
	flags.IntP("workers", "w", pool.DefaultWorkers, "Connections served concurrently")
	flags.String("bind", "", "Address to bind (default: all interfaces)")
	flags.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	configPath := flags.StringP("config", "c", "", "Config file (default: "+config.GetDefaultConfigPath()+")")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	// An explicit --config must exist; the default location is optional
	if *configPath != "" {
		if _, err := os.Stat(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: config file %s: %v\n", *configPath, err)
			return 1
		}
	}

	// Step 1: Configuration
	cfg, err := config.LoadWithFlags(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logOutput, err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logOutput.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Step 2: File tree
	tree, err := config.CreateFileTree(ctx, &cfg.Files)
	if err != nil {
		logger.Error("Invalid root: %v", err)
		return 1
	}
	defer tree.Close()

	// Step 3: Metrics and adapters
	metricsResult := config.InitializeMetrics(cfg)

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		logger.Error("Failed to create adapters: %v", err)
		return 1
	}

	srv := server.New(tree)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	if metricsResult.Server != nil {
		srv.SetMetricsServer(metricsResult.Server)
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			logger.Error("Failed to register %s adapter: %v", a.Protocol(), err)
			return 1
		}
	}

	h := cfg.Adapters.HTTP
	logger.Info("fileshover starting")
	logger.Info("  Root: %s", tree.Root())
	logger.Info("  Workers: %d (queue %d)", h.Workers, h.QueueSize)
	logger.Info("  Read timeout: %v, write timeout: %v", h.ReadTimeout, h.WriteTimeout)
	if metricsResult.Server != nil {
		logger.Info("  Metrics: enabled on port %d", cfg.Server.Metrics.Port)
	}

	for _, a := range adapters {
		go announce(ctx, a, h.BindAddress)
	}

	// Step 4: Serve until a signal arrives or an adapter fails
	err = srv.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error: %v", err)
		return 1
	}

	logger.Info("Server stopped gracefully")
	return 0
}

// announce logs the bound address once the adapter's listener is open, so
// an ephemeral port is reported with its real number.
func announce(ctx context.Context, a adapter.Adapter, bind string) {
	r, ok := a.(interface{ Ready() <-chan struct{} })
	if !ok {
		return
	}
	select {
	case <-r.Ready():
		addr := net.JoinHostPort(bind, strconv.Itoa(a.Port()))
		logger.Info("%s listening on %s. Press Ctrl+C to stop.", a.Protocol(), addr)
	case <-ctx.Done():
	}
}
