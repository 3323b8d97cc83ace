package store

import (
	"fmt"

	"git.sr.ht/~jakintosh/studydesk/internal/config"
	"git.sr.ht/~jakintosh/studydesk/internal/domain"
)

// Open returns the document store selected by cfg.
func Open(cfg config.Store) (domain.DocumentStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewInMemoryStore(), nil
	case config.DriverSQLite, "":
		return NewSQLiteStore(cfg.Path, cfg.Watch)
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
