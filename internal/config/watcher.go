package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigWatcher monitors the .env file and pushes runtime-adjustable
// settings to registered callbacks.
type ConfigWatcher struct {
	config      *Config
	envPath     string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time
	mu          sync.Mutex

	onPollInterval func(time.Duration)
	onLogLevel     func(string)
}

// NewConfigWatcher creates a watcher for config.EnvPath().
func NewConfigWatcher(config *Config) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &ConfigWatcher{
		config:   config,
		envPath:  config.EnvPath(),
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}
	if stat, err := os.Stat(cw.envPath); err == nil {
		cw.lastModTime = stat.ModTime()
	}
	return cw, nil
}

// OnPollIntervalChange registers the callback for POLL_INTERVAL changes.
func (cw *ConfigWatcher) OnPollIntervalChange(fn func(time.Duration)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.onPollInterval = fn
}

// OnLogLevelChange registers the callback for LOG_LEVEL changes.
func (cw *ConfigWatcher) OnLogLevelChange(fn func(string)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.onLogLevel = fn
}

// Start begins watching the config directory. When the directory cannot be
// watched it falls back to polling the file's modification time.
func (cw *ConfigWatcher) Start() error {
	dir := filepath.Dir(cw.envPath)
	if err := cw.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory, falling back to polling")
		go cw.pollForChanges(5 * time.Second)
		return nil
	}

	go cw.watchForChanges()
	log.Info().Str("env_path", cw.envPath).Msg("Started watching config file for changes")
	return nil
}

// Stop stops the config watcher
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		cw.watcher.Close()
	})
}

// ReloadConfig manually triggers a config reload (e.g., from SIGHUP)
func (cw *ConfigWatcher) ReloadConfig() {
	cw.reloadConfig()
}

func (cw *ConfigWatcher) watchForChanges() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != cw.envPath && filepath.Base(event.Name) != ".env" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce - wait a bit for write to complete
			time.Sleep(100 * time.Millisecond)
			log.Info().Str("event", event.Op.String()).Msg("Detected .env file change")
			cw.reloadConfig()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) pollForChanges(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(cw.envPath)
			if err != nil || !stat.ModTime().After(cw.lastModTime) {
				continue
			}
			cw.lastModTime = stat.ModTime()
			log.Info().Msg("Detected .env file change via polling")
			cw.reloadConfig()

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) reloadConfig() {
	envMap, err := godotenv.Read(cw.envPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("path", cw.envPath).Msg("Failed to read .env file")
		}
		return
	}

	cw.mu.Lock()
	var (
		changes      []string
		newInterval  *time.Duration
		newLevel     string
		pollCallback = cw.onPollInterval
		logCallback  = cw.onLogLevel
	)

	if raw, ok := envMap["POLL_INTERVAL"]; ok {
		d, err := ParseDuration(raw)
		switch {
		case err != nil || d < 0:
			log.Warn().Str("value", raw).Msg("Ignoring invalid POLL_INTERVAL in .env")
		case d != cw.config.PollInterval:
			cw.config.PollInterval = d
			newInterval = &d
			changes = append(changes, "poll interval")
		}
	}

	if raw, ok := envMap["LOG_LEVEL"]; ok {
		level := strings.ToLower(strings.Trim(raw, "'\" "))
		if _, err := zerolog.ParseLevel(level); err != nil || level == "" {
			log.Warn().Str("value", raw).Msg("Ignoring invalid LOG_LEVEL in .env")
		} else if level != strings.ToLower(cw.config.LogLevel) {
			cw.config.LogLevel = level
			newLevel = level
			changes = append(changes, "log level")
		}
	}
	cw.mu.Unlock()

	if len(changes) == 0 {
		log.Debug().Msg("No relevant changes detected in .env file")
		return
	}
	log.Info().Strs("changes", changes).Msg("Applied .env file changes to runtime config")

	if newInterval != nil && pollCallback != nil {
		pollCallback(*newInterval)
	}
	if newLevel != "" && logCallback != nil {
		logCallback(newLevel)
	}
}
