// Package database provides SQL persistence for clients, accounts, exchange
// records and sessions. SQLite (modernc) and MySQL share one schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"git.sr.ht/~jakintosh/codeflow/internal/config"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/session"
)

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database named by cfg and ensures the schema.
func Open(
	ctx context.Context,
	cfg config.DatabaseConfig,
) (
	*Store,
	error,
) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Path)
	case config.DriverMySQL:
		return NewMySQLStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown database driver '%s'", cfg.Driver)
	}
}

// NewSQLiteStore opens the sqlite database at dbPath. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(
	dbPath string,
) (
	*Store,
	error,
) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one connection: an in-memory database is per connection, and sqlite
	// serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	return &Store{db: db, driver: config.DriverSQLite}, nil
}

// NewMySQLStore connects to MySQL with the pool settings from cfg and
// verifies the connection before ensuring the schema.
func NewMySQLStore(
	ctx context.Context,
	cfg config.DatabaseConfig,
) (
	*Store,
	error,
) {
	db, err := sql.Open("mysql", buildDSN(cfg.MySQL))
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	return &Store{db: db, driver: config.DriverMySQL}, nil
}

func buildDSN(cfg config.MySQLConfig) string {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mysqlCfg.DBName = cfg.Name
	mysqlCfg.AllowNativePasswords = true
	// RowsAffected must count matched rows so an UPDATE that rewrites
	// identical values is not mistaken for a missing row
	mysqlCfg.ClientFoundRows = true
	mysqlCfg.Params = map[string]string{
		"charset": "utf8mb4",
	}
	return mysqlCfg.FormatDSN()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) ClientRegistry() service.ClientRegistry { return s }
func (s *Store) AccountStore() service.AccountStore     { return s }
func (s *Store) ExchangeStore() service.ExchangeStore   { return s }
func (s *Store) SessionStore() session.Store            { return s }

func initSchema(db *sql.DB) error {
	if err := initTable(db, "clients", `
		CREATE TABLE IF NOT EXISTS clients (
			id             VARCHAR(255) PRIMARY KEY,
			secret         VARCHAR(255) NOT NULL,
			name           VARCHAR(255) NOT NULL,
			callback_urls  TEXT NOT NULL,
			pkce_required  INTEGER NOT NULL
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "accounts", `
		CREATE TABLE IF NOT EXISTS accounts (
			username       VARCHAR(255) PRIMARY KEY,
			password_hash  BLOB NOT NULL
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "exchange", `
		CREATE TABLE IF NOT EXISTS exchange (
			code              VARCHAR(255) PRIMARY KEY,
			state             TEXT NOT NULL,
			challenge         VARCHAR(255) NOT NULL,
			challenge_method  VARCHAR(16) NOT NULL,
			client_id         VARCHAR(255) NOT NULL,
			callback_url      TEXT NOT NULL,
			grant_type        VARCHAR(64) NOT NULL,
			scope             TEXT NOT NULL,
			subject           VARCHAR(255) NOT NULL,
			redeemed          INTEGER NOT NULL,
			created_at        BIGINT NOT NULL -- unix milliseconds
		);`,
	); err != nil {
		return err
	}

	if err := initTable(db, "session", `
		CREATE TABLE IF NOT EXISTS session (
			id          VARCHAR(255) PRIMARY KEY,
			data        TEXT NOT NULL,
			expires_at  BIGINT NOT NULL
		);`,
	); err != nil {
		return err
	}

	return nil
}

func initTable(
	db *sql.DB,
	name string,
	sql string,
) error {
	if _, err := db.Exec(sql); err != nil {
		return fmt.Errorf("failed to init '%s' table schema: %v", name, err)
	}
	return nil
}

func resultsEmpty(result sql.Result) bool {
	count, err := result.RowsAffected()
	if err != nil {
		return false
	}
	return count == 0
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
