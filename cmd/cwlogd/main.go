package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"cwlogd/internal/config"
	"cwlogd/internal/daemon"
	"cwlogd/internal/paths"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.cwlogd/config.toml)")
	dataDirFlag := flag.String("data-dir", "", "data directory (default ~/.cwlogd)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = paths.ConfigPath()
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	dataDir := *dataDirFlag
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = paths.BaseDir()
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg, DataDir: dataDir}),
	)

	app.Run()
}
