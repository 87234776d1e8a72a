package eventlog

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating an event repository
type RepositoryConfig struct {
	// DB is required for PostgreSQL repositories
	DB DB
	// DataDir is required for file-based repositories
	DataDir string
}

// NewRepository creates a new event repository based on the persistence type
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
	case "", "inmem", "memory":
		return NewInMemRepository(), nil
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRepository(config.DB), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileRepository(config.DataDir)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: inmem, postgres, file)", persistenceType)
	}
}
