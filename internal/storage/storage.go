package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/types"
)

// Storage is the interface for all export backends.
type Storage interface {
	// Store persists a batch of records.
	Store(records []*types.PostRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// OutputPath returns {output}/{prefix}_{dateTag}.{ext}.
func OutputPath(outputDir, prefix, dateTag, ext string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s.%s", prefix, dateTag, ext))
}

// New builds every configured backend behind a single MultiStorage.
func New(cfg *config.Config, dateTag string, logger *slog.Logger) (*MultiStorage, error) {
	var backends []Storage
	fail := func(err error) (*MultiStorage, error) {
		for _, b := range backends {
			b.Close()
		}
		return nil, err
	}

	for _, format := range cfg.Storage.Formats {
		path := OutputPath(cfg.Harvest.OutputDir, cfg.Storage.FilePrefix, dateTag, format)
		b, err := NewFileStorage(format, path, logger)
		if err != nil {
			return fail(&types.StorageError{Backend: format, Err: err})
		}
		backends = append(backends, b)
	}

	if m := cfg.Storage.Mongo; m.URI != "" {
		b, err := NewMongoStorage(m.URI, m.Database, m.Collection, logger)
		if err != nil {
			return fail(&types.StorageError{Backend: "mongodb", Err: err})
		}
		backends = append(backends, b)
	}

	return NewMultiStorage(backends, logger), nil
}
