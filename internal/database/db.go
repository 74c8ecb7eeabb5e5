package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, ping(db)
}

// OpenSQLite opens a single-file SQLite database for single-node
// deployments and tests.  SQLite allows one writer, so the pool is capped
// at one connection.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, ping(db)
}

func ping(db *sql.DB) error {
	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}

// schema is valid for both MySQL and SQLite.  Times are stored as unix
// milliseconds so neither driver has to parse DATETIME strings.
const schema = `CREATE TABLE IF NOT EXISTS screening_sessions (
	id              VARCHAR(16)  NOT NULL PRIMARY KEY,
	movie_title     VARCHAR(255) NOT NULL,
	movie_file      VARCHAR(255) NOT NULL,
	poster_file     VARCHAR(255) NOT NULL DEFAULT '',
	playlist_json   TEXT         NOT NULL,
	scheduled_at_ms BIGINT       NOT NULL,
	status          VARCHAR(16)  NOT NULL,
	created_at_ms   BIGINT       NOT NULL
)`

// Migrate creates the tables the service needs if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate screening_sessions: %w", err)
	}
	return nil
}
