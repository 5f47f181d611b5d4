package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/jroosing/minidns/internal/config"
	"github.com/jroosing/minidns/internal/logging"
	"github.com/jroosing/minidns/internal/server"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to YAML configuration file (or set MINIDNS_CONFIG_FILE)")
		noDivert   = pflag.BoolP("no-divert", "n", false, "Do not divert the local DNS port (or set MINIDNS_NO_DIVERT=1)")
		jsonLogs   = pflag.Bool("json-logs", false, "Enable JSON structured logging")
		debug      = pflag.Bool("debug", false, "Enable debug logging")
	)
	pflag.Parse()

	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if *debug {
		cfg.Logging.Level = "DEBUG"
	}

	logger := logging.Configure(logging.FromConfig(cfg.Logging))
	logger.Info("minidns starting",
		"api", cfg.API.Addr(),
		"dns", cfg.DNS.Addr(),
		"storage", cfg.Storage.Driver,
		"forwarders", cfg.DNS.Forwarders,
	)

	var opts []server.Option
	if *noDivert || config.NoDivertFromEnv() {
		opts = append(opts, server.WithoutDivert())
	}

	runner := server.NewRunner(logger, opts...)
	if err := runner.Run(cfg); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}
