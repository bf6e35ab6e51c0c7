// Package main implements a small command-line demonstration of the
// discover -> open -> snapshot lifecycle: it probes the local network for
// Elegoo printers, opens a session against the first one found, prints its
// status snapshot, then exits cleanly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielcherubini/elegoo-printercore/internal/discovery"
	"github.com/danielcherubini/elegoo-printercore/internal/printerclient"
)

const (
	version = "0.1.0"
	appName = "printercore-demo"
)

func main() {
	if err := run(); err != nil {
		slog.Error("printercore-demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()

	if cfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version)
		return nil
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	identity, err := discoverOne(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	logger.Info("discovered printer",
		"name", identity.Name, "model", identity.Model, "serial", identity.Serial,
		"address", identity.IPAddress, "dialect", identity.ProtocolKind)

	client, err := printerclient.NewClient(identity, printerclient.Options{
		AccessCode:     cfg.AccessCode,
		TokenRequired:  cfg.AccessCode != "",
		HostBrokerPort: cfg.HostBrokerPort,
	}, logger)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}
	defer client.Close()

	openCtx, openCancel := context.WithTimeout(ctx, 15*time.Second)
	defer openCancel()
	if err := client.Open(openCtx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	snap := client.Snapshot()
	fmt.Printf("machine status: %s\n", snap.MachineStatus())
	fmt.Printf("print filename:  %s\n", snap.PrintFilename())
	fmt.Printf("total layers:    %.0f\n", snap.TotalLayers())

	return nil
}

func discoverOne(ctx context.Context, cfg *CLIConfig, logger *slog.Logger) (discovery.Identity, error) {
	discoverer := discovery.NewDiscoverer(logger)

	found, err := discoverer.Discover(ctx, cfg.DiscoverTimeout, cfg.NetworkHint)
	if err != nil {
		return discovery.Identity{}, err
	}
	if len(found) == 0 {
		return discovery.Identity{}, fmt.Errorf("no printers responded within %s", cfg.DiscoverTimeout)
	}
	return found[0], nil
}
