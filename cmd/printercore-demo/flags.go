package main

import (
	"flag"
	"os"
	"time"
)

// CLIConfig holds the command-line configuration for the demo.
type CLIConfig struct {
	NetworkHint     string
	DiscoverTimeout time.Duration
	AccessCode      string
	HostBrokerPort  int
	LogLevel        string
	ShowVersion     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.NetworkHint, "broadcast", getEnv("PRINTERCORE_BROADCAST", ""),
		"broadcast address to probe instead of 255.255.255.255 (env: PRINTERCORE_BROADCAST)")
	flag.DurationVar(&cfg.DiscoverTimeout, "discover-timeout", 10*time.Second,
		"how long to wait for discovery responses")
	flag.StringVar(&cfg.AccessCode, "access-code", getEnv("PRINTERCORE_ACCESS_CODE", ""),
		"CC2 access code, if the printer requires one (env: PRINTERCORE_ACCESS_CODE)")
	flag.IntVar(&cfg.HostBrokerPort, "host-broker-port", 0,
		"embedded MQTT broker port on the host, for legacy (CC1-and-older) printers")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("PRINTERCORE_LOG_LEVEL", "info"),
		"log level: debug, info, warn, error (env: PRINTERCORE_LOG_LEVEL)")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")

	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
