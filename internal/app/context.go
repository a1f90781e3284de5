package app

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"cmms/internal/config"
	"cmms/internal/db"
	"cmms/internal/engine"
	"cmms/internal/logging"
	"cmms/internal/migrate"
	"cmms/internal/rolecache"
)

// Options override what the workspace config says.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
	RedisURL  string
	LogLevel  string
	LogFormat string
	LogOutput io.Writer
}

// Runtime is an opened workspace: migrated database, engine and logger.
type Runtime struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Log    zerolog.Logger
	cache  *rolecache.Cache
}

// Open loads config (defaults when the file is missing), applies overrides,
// opens and migrates the database and wires the engine. A configured Redis
// URL puts the role cache in front of the staff table.
func Open(opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	if opts.RedisURL != "" {
		cfg.Cache.RedisURL = opts.RedisURL
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, opts.LogOutput)
	if err != nil {
		return nil, err
	}

	dbCfg := db.Config{Workspace: opts.Workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn, dbCfg.Dialect()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	eng := engine.New(conn, cfg)
	eng.Log = log
	rt := &Runtime{Config: cfg, DB: conn, Log: log}
	if cfg.Cache.RedisURL != "" {
		cache, err := rolecache.New(cfg.Cache.RedisURL, eng.Roles, cfg.CacheTTL())
		if err != nil {
			conn.Close()
			return nil, err
		}
		cache.Log = log
		eng.Roles = cache
		rt.cache = cache
		log.Debug().Dur("ttl", cfg.CacheTTL()).Msg("role cache enabled")
	}
	rt.Engine = eng
	return rt, nil
}

func (r *Runtime) Close() error {
	if r.cache != nil {
		_ = r.cache.Close()
	}
	return r.DB.Close()
}
