package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"hookrelay/internal/platform/config"
)

// Open connects to the SQLite store described by cfg. A path of ":memory:"
// opens a private in-memory database limited to one connection.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	path := strings.TrimPrefix(cfg.Path, "file:")
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if !memory {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if memory || maxConns <= 0 {
		// every new connection to :memory: would see an empty database
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if !memory {
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
