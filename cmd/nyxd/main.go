package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"nyxchain/config"
	"nyxchain/core"
	"nyxchain/observability/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts := config.NewRawOptions()
	if err := config.ParseArgs(opts, args); err != nil {
		fmt.Fprintln(os.Stderr, "nyxd:", err)
		return 1
	}

	baseDir := opts.Get("datadir", defaultDataDir())
	confPath := opts.Get("conf", filepath.Join(baseDir, "nyx.conf"))
	if !opts.Explicit("conf") {
		if err := config.WriteDefaultConfig(confPath); err != nil {
			fmt.Fprintln(os.Stderr, "nyxd: cannot write default configuration:", err)
		}
	}
	if err := config.LoadFile(opts, confPath); err != nil {
		fmt.Fprintln(os.Stderr, "nyxd:", err)
		return 1
	}

	// The testnet chain keeps its state in a subdirectory of the data dir;
	// the configuration file stays in the base directory.
	dataDir := opts.Get("datadir", baseDir)
	env := "mainnet"
	if opts.Bool("testnet", false) {
		env = "testnet"
		dataDir = filepath.Join(dataDir, "testnet")
	}
	opts.Override("datadir", dataDir)

	logger, sink := logging.Setup("nyxd", env, logging.Options{
		PrintToConsole: opts.Bool("printtoconsole", false),
		FilePath:       filepath.Join(dataDir, "debug.log"),
		Debug:          opts.Bool("debug", false),
	})
	defer sink.Close()

	cfg, err := config.Resolve(opts, logger)
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, "nyxd:", err)
		return 1
	}

	node := core.New(cfg, logger)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				if err := sink.Rotate(); err != nil {
					logger.Warn("log rotation failed", slog.Any("error", err))
				}
				continue
			}
			logger.Info("signal received", slog.String("signal", sig.String()))
			node.RequestShutdown()
		}
	}()

	if err := node.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "nyxd:", err)
		return 1
	}
	return 0
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nyxchain"
	}
	return filepath.Join(home, ".nyxchain")
}
