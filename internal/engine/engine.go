package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cmms/internal/config"
	"cmms/internal/db"
	"cmms/internal/domain"
	"cmms/internal/engine/auth"
	"cmms/internal/events"
	"cmms/internal/repo"
)

// RoleDirectory resolves a staff member to its current role level for
// permission checks. It may be a cache; hierarchy rules read levels from the
// staff row inside their own transaction instead.
type RoleDirectory interface {
	RoleLevel(ctx context.Context, staffID string) (domain.RoleLevel, error)
}

// RepoRoles reads role levels straight from the staff table.
type RepoRoles struct {
	Repo repo.Repo
}

func (r RepoRoles) RoleLevel(ctx context.Context, staffID string) (domain.RoleLevel, error) {
	return r.Repo.StaffRoleLevel(ctx, staffID)
}

type invalidator interface {
	Invalidate(ctx context.Context, staffID string) error
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Roles  RoleDirectory
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(conn *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	dialect, err := db.ParseDialect(cfg.Database.Driver)
	if err != nil {
		dialect = db.SQLite
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	return Engine{
		DB:     conn,
		Repo:   r,
		Events: events.Writer{Dialect: dialect},
		Config: cfg,
		Roles:  RepoRoles{Repo: r},
		Log:    zerolog.Nop(),
		Now:    time.Now,
	}
}

// now is second-precision UTC, matching what the store keeps.
func (e Engine) now() time.Time {
	t := time.Now()
	if e.Now != nil {
		t = e.Now()
	}
	return t.UTC().Truncate(time.Second)
}

// Today is the current civil date on the engine clock.
func (e Engine) Today() time.Time {
	return domain.Day(e.now())
}

// begin opens the transaction every check-then-write runs in. Postgres gets
// serializable isolation; SQLite already serializes writers.
func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	var opts *sql.TxOptions
	if e.Repo.Dialect == db.Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return e.DB.BeginTx(ctx, opts)
}

func (e Engine) append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

// rejected logs a business-rule rejection and returns err unchanged.
func (e Engine) rejected(op string, err error) error {
	if domain.IsValidation(err) {
		e.Log.Debug().Str("op", op).Str("code", domain.ErrorCode(err)).Strs("fields", domain.ErrorFields(err)).Msg(err.Error())
	}
	return err
}

func (e Engine) allowTerminal() bool {
	return e.Config != nil && e.Config.Policies.Assignment.AllowTerminalActivities
}

func (e Engine) guardRoleChanges() bool {
	return e.Config == nil || e.Config.GuardRoleChanges()
}

// Permissions lists what staffID may do.
func (e Engine) Permissions(ctx context.Context, staffID string) ([]string, error) {
	perms, err := auth.Service{Roles: e.Roles}.Permissions(ctx, staffID)
	if err != nil {
		return nil, lookupErr("staff", staffID, err)
	}
	return perms, nil
}

// lookupErr keeps repo.ErrNotFound visible through the wrap.
func lookupErr(kind, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Second)
	return &v
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := domain.Day(*t)
	return &v
}
