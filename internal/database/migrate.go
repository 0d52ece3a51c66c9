package database

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS parks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT 'no name',
		groupname TEXT NOT NULL DEFAULT 'default',
		gamemode TEXT NOT NULL DEFAULT 'multiplayer',
		date DATETIME NOT NULL,
		scenario TEXT,
		dir TEXT,
		thumbnail TEXT,
		largeimg TEXT,
		filename TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS parks_date_idx ON parks (date)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS parks (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(128) NOT NULL DEFAULT 'no name',
		groupname VARCHAR(128) NOT NULL DEFAULT 'default',
		gamemode VARCHAR(128) NOT NULL DEFAULT 'multiplayer',
		date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		scenario VARCHAR(64),
		dir VARCHAR(64),
		thumbnail VARCHAR(16),
		largeimg VARCHAR(16),
		filename VARCHAR(32)
	)`,
	`CREATE INDEX IF NOT EXISTS parks_date_idx ON parks (date)`,
}

// Migrate creates the parks table when it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if db.DriverName() == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
