package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	nxload "github.com/jmbenlloch/nxload/pkg"
	"gopkg.in/yaml.v3"
)

// Environment variables override the configuration file, e.g. NXLOAD_ROOT
const envPrefix = "NXLOAD_"

func LoadConfiguration(filename string) (nxload.Configuration, error) {
	var config nxload.Configuration

	// Set default values
	config.Root = "/"
	config.Quiet = false
	config.Verbosity = 0
	config.Parallel = false
	config.NumWorkers = 1
	config.NoDB = true
	config.DBDriver = "sqlite"
	config.DBName = "nxload.db"

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &config)
		default:
			err = json.Unmarshal(data, &config)
		}
		if err != nil {
			return config, fmt.Errorf("error parsing %s: %w", filename, err)
		}
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: envPrefix}); err != nil {
		return config, fmt.Errorf("error reading environment: %w", err)
	}
	return config, nil
}

func printConfiguration(config nxload.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("Root: %s", config.Root), "config")
	logger.Info(fmt.Sprintf("Quiet: %t", config.Quiet), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Parallel: %t", config.Parallel), "config")
	logger.Info(fmt.Sprintf("Num workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Metrics file: %s", config.MetricsFile), "config")
}
