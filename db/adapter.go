package db

import (
	"fmt"

	"github.com/kasuganosora/gamecaps/config"
	dbmysql "github.com/kasuganosora/gamecaps/db/mysql"
	dbsqlite "github.com/kasuganosora/gamecaps/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode. An empty mode
// means SQLite.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case "", ModeSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = dbsqlite.Memory
		}
		return dbsqlite.Open(path)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
