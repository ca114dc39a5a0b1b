package auth

import (
	"fmt"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

// NewServiceFromMode builds the identity service for the configured
// storage mode. Returns the service and the resolved mode name.
func NewServiceFromMode(mode string) (Service, string, error) {
	switch mode {
	case "", ModeMemory, "mem":
		return NewManager(newMemoryStore()), ModeMemory, nil
	case ModeSQLite, "local":
		store, err := newSQLiteStoreFromEnv()
		if err != nil {
			return nil, ModeSQLite, err
		}
		return NewManager(store), ModeSQLite, nil
	case ModePostgres, "db", "postgresql":
		store, err := newPostgresStoreFromEnv()
		if err != nil {
			return nil, ModePostgres, err
		}
		return NewManager(store), ModePostgres, nil
	default:
		return nil, mode, fmt.Errorf("invalid auth mode %q (supported: %s, %s, %s)", mode, ModeMemory, ModeSQLite, ModePostgres)
	}
}
