package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/config"
	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/history"
	"github.com/dedurus/openmct/internal/logging"
	"github.com/dedurus/openmct/internal/sources"
)

// objectsFile overrides OBJECTS_FILE for every command.
var objectsFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&objectsFile, "objects", "", "objects file in export format (overrides OBJECTS_FILE)")
}

func setupLogging(cfg *config.Config) {
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "openmct",
		FilePath:  cfg.LogFile,
	})
}

// loadConfig loads configuration, applies flag overrides and initialises
// logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if objectsFile != "" {
		cfg.ObjectsFile = objectsFile
	}
	setupLogging(cfg)
	return cfg, nil
}

// loadCatalog loads configuration and builds the object registry without
// recording history.
func loadCatalog() (*config.Config, *domain.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	reg, err := buildRegistry(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}

// buildRegistry registers the telemetry sources and loads objects. When rec
// is non-nil every successful telemetry response is recorded into it.
func buildRegistry(cfg *config.Config, rec history.Recorder) (*domain.Registry, error) {
	reg := domain.NewRegistry()
	factory := sources.NewFactory(sources.Options{HTTPTimeout: cfg.HTTPTimeout})
	if rec != nil {
		reg.RegisterCapability(domain.CapabilityTelemetry, history.Wrap(rec, factory.Capability))
	} else {
		factory.Register(reg)
	}

	if cfg.ObjectsFile == "" {
		if err := loadDemoObjects(reg); err != nil {
			return nil, err
		}
		log.Info().Int("objects", reg.Len()).Msg("No objects file configured, loaded demo objects")
		return reg, nil
	}

	n, err := reg.LoadFile(cfg.ObjectsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects from %s: %w", cfg.ObjectsFile, err)
	}
	log.Info().Str("file", cfg.ObjectsFile).Int("objects", n).Msg("Loaded objects")
	return reg, nil
}
