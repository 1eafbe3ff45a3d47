// Package config loads engine defaults from environment variables.
// CLI flags override anything set here.
package config

import (
	"os"
	"runtime"
	"strconv"
)

// Config holds engine configuration.
type Config struct {
	OutputDir  string
	LogLevel   string
	Workers    int
	LedgerPath string
	SQLitePath string
}

// Load loads configuration from environment variables.
func Load() *Config {
	outputDir := os.Getenv("GOVALID_OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "out"
	}

	logLevel := os.Getenv("GOVALID_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	workers := runtime.GOMAXPROCS(0)
	if raw := os.Getenv("GOVALID_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			workers = n
		}
	}

	return &Config{
		OutputDir:  outputDir,
		LogLevel:   logLevel,
		Workers:    workers,
		LedgerPath: os.Getenv("GOVALID_LEDGER"),
		SQLitePath: os.Getenv("GOVALID_SQLITE"),
	}
}
