package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
)

const (
	defaultDirPerm = 0o755

	defaultDBPath       = "./data/metrics.db"
	defaultBatchSize    = 10
	defaultBatchTimeout = 30 * time.Second
)

type Config struct {
	DBPath       string
	BackupDir    string
	BatchSize    int
	BatchTimeout time.Duration
	Enabled      bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if metrics is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "batch size and timeout must not be negative")
	}
	return nil
}

// backupDir defaults to a backups directory next to the database.
func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
