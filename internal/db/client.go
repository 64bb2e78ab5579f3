// Package db stores subjects and message logs in SurrealDB.
//
// The connection reconnects on its own (rews over gorillaws) and speaks CBOR.
// Every Query* method records its duration under metrics.OpDBQuery.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/raphaelgruber/carechat/internal/models"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

// Reconnect tuning for the websocket.
const (
	dialTimeout      = 5 * time.Second
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
	reconnectRetries = 10
)

func init() {
	// WebSocket upgrades fail when ALPN picks HTTP/2 on wss:// endpoints.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// AuthDatabase signs in as a database user instead of a root user.
const AuthDatabase = "database"

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or AuthDatabase
}

// Client is a SurrealDB session scoped to one namespace and database.
type Client struct {
	conn    *rews.Connection[*gorillaws.Connection]
	db      *surrealdb.DB
	log     *slog.Logger
	metrics *metrics.Collector
}

// NewClient connects, signs in and selects cfg's namespace and database.
// mc may be nil.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger, mc *metrics.Collector) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "db", "namespace", cfg.Namespace, "database", cfg.Database)

	conn := dial(cfg.URL, logger.New(log.Handler()))
	log.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err == nil {
		err = signIn(ctx, db, cfg)
	}
	if err == nil {
		err = db.Use(ctx, cfg.Namespace, cfg.Database)
	}
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("open session: %w", err)
	}

	log.Info("SurrealDB session ready", "user", cfg.Username, "auth_level", cfg.AuthLevel)
	return &Client{conn: conn, db: db, log: log, metrics: mc}, nil
}

// dial builds an auto-reconnecting connection. gorillaws appends /rpc itself.
func dial(url string, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
	codec := surrealcbor.New()
	baseURL := strings.TrimSuffix(url, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		dialTimeout,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = reconnectInitial
	retryer.MaxDelay = reconnectMax
	retryer.Multiplier = 2.0
	retryer.MaxRetries = reconnectRetries
	conn.Retryer = retryer
	return conn
}

func signIn(ctx context.Context, db *surrealdb.DB, cfg Config) error {
	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == AuthDatabase {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		return fmt.Errorf("signin as %s: %w", cfg.Username, err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.log.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// DB exposes the session for ad hoc queries.
func (c *Client) DB() *surrealdb.DB {
	return c.db
}

// InitSchema applies SchemaSQL. Every statement is idempotent.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.log.Info("schema ready", "tables", []string{models.TableSubject, models.TableMessage})
	return nil
}

// Query runs raw SurrealQL.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]any) (*[]surrealdb.QueryResult[any], error) {
	return surrealdb.Query[any](ctx, c.db, sql, vars)
}

// observe records a query timing. Use with defer and a named error.
func (c *Client) observe(start time.Time, err *error) {
	c.metrics.Observe(metrics.OpDBQuery, start, *err)
}

// WipeData deletes every message and subject but keeps the schema.
// Testing only.
func (c *Client) WipeData(ctx context.Context) error {
	// Messages reference subjects, so they go first.
	for _, table := range []string{models.TableMessage, models.TableSubject} {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	c.log.Warn("wiped all subjects and messages")
	return nil
}
