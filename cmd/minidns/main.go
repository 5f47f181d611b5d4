package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jroosing/minidns/internal/cli"
	"github.com/jroosing/minidns/internal/client"
	"github.com/jroosing/minidns/internal/config"
	"github.com/jroosing/minidns/internal/daemon"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Main(ctx, os.Args[1:], os.Stdout, os.Stderr, newOperations)
	cancel()
	os.Exit(code)
}

func newOperations(opts cli.Options) (cli.Operations, error) {
	path := config.ResolveConfigPath(opts.ConfigPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c := client.New(cfg.API.BaseURL(), cfg.API.APIKey, cfg.API.Timeout)
	d := daemon.NewController(daemon.OptionsFromConfig(cfg, path, opts.NoDivert))
	return cli.NewOperations(c, d), nil
}
