package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/vodline/hlsforge/hls"
)

// defaultConfigLocations lists the paths searched, in order, when -config is
// not given: a dotfile in the home directory, the XDG config path, then a
// dotfile in the working directory.
func defaultConfigLocations() []string {
	var locs []string
	if home, err := os.UserHomeDir(); err == nil {
		locs = append(locs, filepath.Join(home, ".hlsforge.yaml"))
		locs = append(locs, filepath.Join(home, ".config", "hlsforge", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		locs = append(locs, filepath.Join(cwd, ".hlsforge.yaml"))
	}
	return locs
}

func main() {
	source := flag.String("source", "", "Path to the source media file (required).")
	outputDir := flag.String("output", "output", "The output directory to write the HLS package to.")
	configPath := flag.String("config", "", "Path to a pipeline config YAML file (optional; otherwise the default locations are searched, then built-in defaults apply).")
	listHardware := flag.Bool("list-hardware", false, "Enumerate detected hardware encoders and exit.")
	listProfiles := flag.Bool("list-profiles", false, "List known quality profile names and exit.")
	printDefaultConfig := flag.Bool("print-default-config", false, "Emit a default config document to stdout and exit.")
	initConfig := flag.Bool("init-config", false, "Write a default config document to the first default location and exit.")
	logLevel := flag.String("log-level", "info", "Log level: trace, debug, info, warn, error.")

	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "hlsforge",
		Level: hclog.LevelFromString(*logLevel),
	})

	if *printDefaultConfig {
		emitDefaultConfig()
		return
	}

	if *initConfig {
		if err := writeDefaultConfig(); err != nil {
			logger.Error("failed to write default config", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listProfiles {
		for _, name := range hls.ListProfileNames() {
			fmt.Println(name)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *listHardware {
		hw, err := hls.DetectHardware(cfg, logger)
		if err != nil {
			logger.Error("hardware detection failed", "error", err)
			os.Exit(1)
		}
		for _, enc := range hw.Encoders {
			fmt.Printf("%-20s family=%-10s available=%v\n", enc.Name, enc.Family, enc.Available)
		}
		fmt.Printf("selected: %s (%s)\n", hw.SelectedEncoder, hw.DetectedFamily)
		return
	}

	if *source == "" {
		fmt.Fprintln(os.Stderr, "The path to the source media file is required (-source).")
		os.Exit(1)
	}

	metrics := hls.NewMetrics()
	hls.Register(prometheus.DefaultRegisterer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	cancel := make(chan struct{})
	go func() {
		<-sigCh
		close(cancel)
	}()

	result, err := hls.Run(*source, *outputDir, cfg, logger, metrics, func(completed, total int) {
		logger.Info("progress", "completed", completed, "total", total)
	}, cancel)
	if err != nil {
		logger.Error("run failed to start", "error", err)
		os.Exit(1)
	}

	select {
	case <-cancel:
		logger.Warn("run stopped by signal")
		os.Exit(130)
	default:
	}

	for _, r := range result.Summary.Results {
		if !r.Success {
			logger.Warn("task failed", "task_id", r.TaskID, "error", r.Error)
		}
	}

	logger.Info("run complete",
		"total", result.Summary.Total,
		"completed", result.Summary.Completed,
		"failed", result.Summary.Failed,
		"cancelled", result.Summary.Cancelled,
		"success_rate", result.Summary.SuccessRate(),
		"is_valid", result.Validation.IsValid,
	)

	for _, e := range result.Validation.Errors {
		logger.Error("validation error", "detail", e)
	}
	for _, w := range result.Validation.Warnings {
		logger.Warn("validation warning", "detail", w)
	}

	if result.Summary.HasFailures() || !result.Validation.IsValid {
		os.Exit(1)
	}
}

// loadConfig reads path if given, otherwise searches defaultConfigLocations
// in order and falls back to built-in defaults if none exist.
func loadConfig(path string) (*hls.Config, error) {
	if path != "" {
		return loadConfigFile(path)
	}

	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loadConfigFile(loc)
		}
	}

	return hls.DefaultConfig(), nil
}

func loadConfigFile(path string) (*hls.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg hls.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

func emitDefaultConfig() {
	data, err := defaultConfigYAML()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal default config: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(data)
}

// writeDefaultConfig creates a default config document at the first default
// location, refusing to overwrite an existing file.
func writeDefaultConfig() error {
	locs := defaultConfigLocations()
	if len(locs) == 0 {
		return fmt.Errorf("no default config location is available (could not resolve home directory)")
	}
	target := locs[0]

	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("config file already exists: %s", target)
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	fmt.Printf("default config written to %s\n", target)
	return nil
}

func defaultConfigYAML() ([]byte, error) {
	return yaml.Marshal(hls.DefaultConfig())
}
