package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"
)

// FileName is the document name inside the state directory.
const FileName = "config.json"

// Load and Save failures. Every one of them is recoverable: callers fall
// back to Default.
var (
	ErrNotFound           = errors.New("config not found")
	ErrCorrupt            = errors.New("config corrupt")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrWriteFailed        = errors.New("config write failed")
)

// document is the on-disk layout. Unknown keys are ignored on read.
type document struct {
	MQTTServer string `json:"mqtt_server"`
	MQTTPort   string `json:"mqtt_port"`
	MeterID    string `json:"meter_id"`
}

// Store reads and writes the device configuration document.
type Store struct {
	fs     afero.Fs
	logger *slog.Logger
}

// New creates a Store on the given filesystem. The document lives at its root.
func New(fs afero.Fs, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fs, logger: logger}
}

// NewOnDisk creates a Store rooted at dir, creating the directory if needed.
// A directory that cannot be created surfaces later as ErrStorageUnavailable.
func NewOnDisk(dir string, logger *slog.Logger) *Store {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil && logger != nil {
		logger.Warn("create state dir failed", "dir", dir, "error", err)
	}
	return New(afero.NewBasePathFs(osFs, dir), logger)
}

func (s *Store) mount() error {
	if _, err := s.fs.Stat("/"); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Load reads the stored configuration. On any error the returned config is
// Default, so callers may log the error and use the value regardless.
func (s *Store) Load() (DeviceConfig, error) {
	if err := s.mount(); err != nil {
		return Default(), err
	}

	data, err := afero.ReadFile(s.fs, FileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), ErrNotFound
		}
		return Default(), fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, FileName, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Default(), fmt.Errorf("%w: parse: %v", ErrCorrupt, err)
	}

	cfg, err := NewDeviceConfig(doc.MQTTServer, doc.MQTTPort, doc.MeterID)
	if err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration and logs any failure. It never fails.
func (s *Store) LoadOrDefault() DeviceConfig {
	cfg, err := s.Load()
	switch {
	case err == nil:
		s.logger.Info("loaded config", "server", cfg.Server(), "port", cfg.Port(), "meter_id", cfg.MeterID())
	case errors.Is(err, ErrNotFound):
		s.logger.Info("no config file found, using defaults")
	default:
		s.logger.Warn("config load failed, using defaults", "error", err)
	}
	return cfg
}

// Save writes cfg, replacing any existing document. The write goes to a
// temporary file first so a failed write never leaves a truncated document.
func (s *Store) Save(cfg DeviceConfig) error {
	if cfg.IsZero() {
		cfg = Default()
	}
	if err := s.mount(); err != nil {
		return err
	}

	data, err := json.Marshal(document{
		MQTTServer: cfg.Server(),
		MQTTPort:   cfg.Port(),
		MeterID:    cfg.MeterID(),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrWriteFailed, err)
	}

	tmp := FileName + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := s.fs.Rename(tmp, FileName); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("%w: rename: %v", ErrWriteFailed, err)
	}

	s.logger.Info("saved config", "server", cfg.Server(), "port", cfg.Port(), "meter_id", cfg.MeterID())
	return nil
}
