package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds what is needed to open the database
type Config struct {
	DSN            string
	MaxConnections int
	ConnectTimeout time.Duration
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	if cfg.MaxConnections > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxConnections)
		sqldb.SetMaxIdleConns(cfg.MaxConnections)
	}

	db := bun.NewDB(sqldb, pgdialect.New())

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate applies all pending migrations embedded in the binary
func Migrate(ctx context.Context, db *bun.DB, logger *zap.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{l: logger.Sugar()})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	logger.Info("Database migrations applied", zap.Int64("version", version))
	return nil
}

// gooseLogger routes goose output through zap
type gooseLogger struct {
	l *zap.SugaredLogger
}

func (g *gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}

func (g *gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Infof(strings.TrimSuffix(format, "\n"), v...)
}
