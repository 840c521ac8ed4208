// Package db owns the gorm connection shared by every repository and the
// transaction helper services run their writes through.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Pinger is the health check surface of a datasource.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Client struct {
	conn *gorm.DB
}

// NewFromConn wraps a connection opened elsewhere, typically by dbtest.
func NewFromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

// New opens the configured driver, applies pool limits and verifies the
// connection. SQL is logged through logg: errors always, statements slower
// than cfg.SlowQuery at warn.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", DriverPostgres:
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	for _, limit := range []struct {
		set   bool
		apply func()
	}{
		{cfg.MaxOpenConns > 0, func() { pool.SetMaxOpenConns(cfg.MaxOpenConns) }},
		{cfg.MaxIdleConns > 0, func() { pool.SetMaxIdleConns(cfg.MaxIdleConns) }},
		{cfg.ConnMaxLifetime > 0, func() { pool.SetConnMaxLifetime(cfg.ConnMaxLifetime) }},
		{cfg.ConnMaxIdleTime > 0, func() { pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime) }},
	} {
		if limit.set {
			limit.apply()
		}
	}

	client := &Client{conn: conn}
	if err := client.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s: %w", dialector.Name(), err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", dialector.Name()), "database connection established")
	}
	return client, nil
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// Raw runs a raw query bound to ctx.
func (c *Client) Raw(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Raw(query, args...)
}

// WithTx commits when fn returns nil and rolls back on an error or a panic;
// the panic is re-raised after the rollback.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
