package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "evalinstruments.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/evalinstruments"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger   *slog.Logger
	userPath string
	startDir string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	if home, err := os.UserHomeDir(); err == nil {
		l.userPath = filepath.Join(home, UserConfigDir, UserConfigFile)
	}
	if cwd, err := os.Getwd(); err == nil {
		l.startDir = cwd
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/evalinstruments/config.yaml)
// 3. Project config (evalinstruments.yaml in current or parent directories)
// 4. explicitPath, when given; it must exist
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	if l.userPath != "" {
		if err := l.mergeLayer(config, l.userPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", l.userPath))
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", l.userPath), slog.String("error", err.Error()))
		}
	}

	if projectPath := l.findProjectConfig(); projectPath != "" {
		if err := l.mergeLayer(config, projectPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectPath))
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if explicitPath != "" {
		if err := l.mergeLayer(config, explicitPath); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", slog.String("path", explicitPath))
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// mergeLayer decodes one file into an empty Config so that only the keys
// it sets override the layers below.
func (l *Loader) mergeLayer(config *Config, path string) error {
	var layer Config
	if err := decodeFile(path, &layer); err != nil {
		return err
	}
	config.Merge(&layer)
	return nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	if l.userPath == "" {
		return errors.New("no home directory for user config")
	}

	if _, err := os.Stat(l.userPath); err == nil {
		return nil // Already exists
	}

	if err := DefaultConfig().SaveToFile(l.userPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", l.userPath))
	return nil
}

// findProjectConfig searches for the project config in the start directory
// and its parents
func (l *Loader) findProjectConfig() string {
	if l.startDir == "" {
		return ""
	}

	dir := l.startDir
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}
