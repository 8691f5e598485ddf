package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	HealthPort      int
	ShutdownTimeout time.Duration
	SkipPreflight   bool
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("ROBOTLINK_CONFIG", "configs/robotlink.json"),
		"Path to configuration file (env: ROBOTLINK_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("ROBOTLINK_CONFIG", "configs/robotlink.json"),
		"Path to configuration file (env: ROBOTLINK_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("ROBOTLINK_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: ROBOTLINK_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("ROBOTLINK_LOG_FORMAT", ""),
		"Log format: json, text (env: ROBOTLINK_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("ROBOTLINK_DEBUG", false),
		"Enable debug logging (env: ROBOTLINK_DEBUG)")

	flag.IntVar(&cfg.HealthPort, "health-port",
		getEnvInt("ROBOTLINK_HEALTH_PORT", 8080),
		"Health check port, 0 to disable (env: ROBOTLINK_HEALTH_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("ROBOTLINK_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: ROBOTLINK_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight",
		getEnvBool("ROBOTLINK_SKIP_PREFLIGHT", false),
		"Skip the robot bring-up check sequence (env: ROBOTLINK_SKIP_PREFLIGHT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	if cfg.LogLevel != "" && !contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && !contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.HealthPort < 0 || cfg.HealthPort > 65535 {
		return fmt.Errorf("invalid health port: %d", cfg.HealthPort)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Robot Coordinate Streaming Link

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with custom config
  %s --config=/path/to/robotlink.yaml

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Run with environment variables
  export ROBOTLINK_CONFIG=/etc/robotlink/config.json
  export ROBOTLINK_ROBOT_ADDRESS=192.168.1.6
  %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
