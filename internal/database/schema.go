package database

import (
	"context"
	"database/sql"
	"fmt"
)

// The two schemas describe the same tables. Calendar values are fixed width
// strings so both engines compare and sort them identically.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id            CHAR(36)     NOT NULL PRIMARY KEY,
        email         VARCHAR(255) NOT NULL,
        password_hash VARCHAR(255) NOT NULL,
        full_name     VARCHAR(255) NOT NULL DEFAULT '',
        role          VARCHAR(16)  NOT NULL DEFAULT 'PATIENT',
        is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
        created_at    DATETIME     NOT NULL,
        updated_at    DATETIME     NOT NULL,
        UNIQUE KEY uq_users_email (email)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
        id         CHAR(36) NOT NULL PRIMARY KEY,
        user_id    CHAR(36) NOT NULL,
        token_hash CHAR(64) NOT NULL,
        expires_at DATETIME NOT NULL,
        revoked_at DATETIME NULL,
        created_at DATETIME NOT NULL,
        UNIQUE KEY uq_refresh_tokens_hash (token_hash),
        KEY idx_refresh_tokens_user (user_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS availability (
        date       CHAR(10) NOT NULL,
        hour       CHAR(8)  NOT NULL,
        available  BOOLEAN  NOT NULL DEFAULT TRUE,
        updated_at DATETIME NOT NULL,
        PRIMARY KEY (date, hour),
        KEY idx_availability_open (available, date)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS appointments (
        id         CHAR(36)    NOT NULL PRIMARY KEY,
        user_id    CHAR(36)    NOT NULL,
        date       DATETIME    NOT NULL,
        reason     VARCHAR(64) NOT NULL,
        status     VARCHAR(16) NOT NULL,
        created_at DATETIME    NOT NULL,
        updated_at DATETIME    NOT NULL,
        KEY idx_appointments_user (user_id, status, date),
        KEY idx_appointments_status (status, date)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id            CHAR(36)     NOT NULL PRIMARY KEY,
        email         VARCHAR(255) NOT NULL UNIQUE,
        password_hash VARCHAR(255) NOT NULL,
        full_name     VARCHAR(255) NOT NULL DEFAULT '',
        role          VARCHAR(16)  NOT NULL DEFAULT 'PATIENT',
        is_active     BOOLEAN      NOT NULL DEFAULT 1,
        created_at    DATETIME     NOT NULL,
        updated_at    DATETIME     NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
        id         CHAR(36) NOT NULL PRIMARY KEY,
        user_id    CHAR(36) NOT NULL,
        token_hash CHAR(64) NOT NULL UNIQUE,
        expires_at DATETIME NOT NULL,
        revoked_at DATETIME NULL,
        created_at DATETIME NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens (user_id)`,
	`CREATE TABLE IF NOT EXISTS availability (
        date       CHAR(10) NOT NULL,
        hour       CHAR(8)  NOT NULL,
        available  BOOLEAN  NOT NULL DEFAULT 1,
        updated_at DATETIME NOT NULL,
        PRIMARY KEY (date, hour)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_availability_open ON availability (available, date)`,
	`CREATE TABLE IF NOT EXISTS appointments (
        id         CHAR(36)    NOT NULL PRIMARY KEY,
        user_id    CHAR(36)    NOT NULL,
        date       DATETIME    NOT NULL,
        reason     VARCHAR(64) NOT NULL,
        status     VARCHAR(16) NOT NULL,
        created_at DATETIME    NOT NULL,
        updated_at DATETIME    NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_user ON appointments (user_id, status, date)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments (status, date)`,
}

// Migrate creates any missing tables for driver. It is safe to run on
// every start.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case "mysql":
		stmts = mysqlSchema
	case "sqlite":
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
