// Package app turns a workspace configuration and command line overrides
// into a ready SDK client and sync engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/storm-platform/storm-go/internal/config"
	"github.com/storm-platform/storm-go/internal/db"
	"github.com/storm-platform/storm-go/internal/engine"
	"github.com/storm-platform/storm-go/internal/migrate"
	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/transport"
)

// Overrides are values given on the command line or in the environment.
// Empty values leave the workspace configuration untouched.
type Overrides struct {
	URL          string
	Token        string
	Project      string
	TokenInQuery bool
	Timeout      time.Duration
}

// ResolveConfig loads storm.yml from workspace, if any, and applies o on
// top. Without a file a service url override is required.
func ResolveConfig(workspace string, o Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		if o.URL == "" {
			return nil, fmt.Errorf("no %s in %q; pass --url or run storm config init", config.FileName, workspace)
		}
		cfg = config.Default(o.URL)
	}
	if o.URL != "" {
		cfg.Service.URL = o.URL
	}
	if o.Token != "" {
		cfg.Service.Token = o.Token
	}
	if o.TokenInQuery {
		cfg.Service.TokenInQuery = true
	}
	if o.Timeout > 0 {
		cfg.Service.Timeout = o.Timeout
	}
	if o.Project != "" {
		cfg.Project.ID = o.Project
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectID returns the configured project or an error naming the flag.
func ProjectID(cfg *config.Config) (string, error) {
	if cfg.Project.ID == "" {
		return "", fmt.Errorf("project not specified; use --project or set project.id in %s", config.FileName)
	}
	return cfg.Project.ID, nil
}

// NewClient builds the SDK client described by cfg.
func NewClient(cfg *config.Config, log *slog.Logger) *stormsdk.Storm {
	if log == nil {
		log = slog.Default()
	}
	req := transport.New(transport.Config{
		Token:        cfg.Service.Token,
		TokenInQuery: cfg.Service.TokenInQuery,
		Timeout:      cfg.Service.Timeout,
		Logger:       log,
	})
	opts := []stormsdk.Option{stormsdk.WithLogger(log)}
	if cfg.Search.CacheSize > 0 {
		opts = append(opts, stormsdk.WithSearchCache(cfg.Search.CacheSize))
	}
	return stormsdk.New(cfg.Service.URL, req, opts...)
}

// OpenJournal opens and migrates the workspace journal database.
func OpenJournal(ctx context.Context, workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Path(workspace), err)
	}
	return conn, nil
}

// NewEngine opens the workspace journal and binds it to sdk. The caller
// closes the returned database.
func NewEngine(ctx context.Context, workspace string, sdk *stormsdk.Storm, log *slog.Logger) (engine.Engine, *sql.DB, error) {
	conn, err := OpenJournal(ctx, workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	e := engine.New(sdk, conn)
	if log != nil {
		e.Log = log.With("component", "engine")
	}
	return e, conn, nil
}
