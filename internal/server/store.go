package server

import (
	"fmt"

	"github.com/jroosing/minidns/internal/config"
	"github.com/jroosing/minidns/internal/database"
	"github.com/jroosing/minidns/internal/database/boltdb"
	"github.com/jroosing/minidns/internal/zone"
)

// OpenStore opens the zone store selected by cfg.Driver. The memory driver
// returns a nil store and a no-op close.
func OpenStore(cfg config.StorageConfig) (zone.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := database.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case config.DriverBolt:
		st, err := boltdb.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.DriverMemory:
		return nil, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
