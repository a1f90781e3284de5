package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cmms/internal/app"
	"cmms/internal/config"
	"cmms/internal/db"
	"cmms/internal/domain"
	"cmms/internal/engine"
	"cmms/internal/migrate"
	"cmms/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cmms",
	Short: "Campus maintenance CLI",
	Long: `cmms plans and tracks campus maintenance work.
- Staff: people with a role level (1 executive officer, 2 mid-level manager, 3 base-level worker).
- Supervision: dated supervisor -> subordinate edges; supervisors sit exactly one level above.
- Activities: cleaning, repair or weather response work bound to one facility; statuses go
  planned -> in_progress -> completed, and planned or in_progress can be cancelled.
- Assignments: which staff work on which activity, with a responsibility.
- Event log: every accepted change, view with 'cmms log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		if code := domain.ErrorCode(err); code != "" {
			fmt.Fprintf(os.Stderr, "error [%s]: %v\n", code, err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func initConfig() {
	// A workspace .env fills in anything the environment does not set.
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading %s: %v\n", envFile, err)
	}
	viper.SetEnvPrefix("CMMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "cli", "actor recorded in the event log")
	flags.String("driver", "", "database driver (sqlite|postgres), overrides cmms.yml")
	flags.String("dsn", "", "database DSN, overrides cmms.yml")
	flags.String("redis-url", "", "redis URL for the role cache, overrides cmms.yml")
	flags.String("log-level", "", "log level, overrides cmms.yml")
	for _, name := range []string{"workspace", "json", "actor-id", "driver", "dsn", "redis-url", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(facilityCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(superviseCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(permsCmd())
	rootCmd.AddCommand(rolesCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create cmms.yml, migrate the database and generate a JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			version, err := migrate.Version(rt.DB)
			if err != nil {
				return err
			}
			if viper.GetString("jwt_secret") == "" {
				secret, err := randomSecret()
				if err != nil {
					return err
				}
				envPath := filepath.Join(workspace, ".env")
				if err := setEnvValue(envPath, "CMMS_JWT_SECRET", secret); err != nil {
					return err
				}
				fmt.Println("wrote CMMS_JWT_SECRET to", envPath)
			}
			fmt.Printf("database %s at schema version %d\n", rt.Config.Database.Driver, version)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate cmms.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every accepted change: activity transitions, supervision edges, assignments and staff changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, repoEventFilters(evtType, entityKind, entityID))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor", "Payload")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (activity, staff, supervise, works_for)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func permsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perms <staff-id>",
		Short: "Show the permissions a staff member holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				perms, err := e.Permissions(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(perms)
				}
				for _, p := range perms {
					fmt.Println(p)
				}
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <staff-id>",
		Short: "Mint a bearer token for an active staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return fmt.Errorf("CMMS_JWT_SECRET is not set; run cmms init")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Repo.GetStaff(ctx, args[0])
				if err != nil {
					return err
				}
				if !st.Active {
					return fmt.Errorf("staff %s is inactive", st.ID)
				}
				token, err := server.SignToken(secret, st.ID, ttl)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" && !allowHeader {
				return fmt.Errorf("CMMS_JWT_SECRET is required for bearer auth (or pass --allow-staff-header)")
			}
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg := rt.Config
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:        secret,
					AllowStaffHeader: allowHeader,
					DevLogin:         devLogin,
				},
				RateLimit: server.RateLimitConfig{
					Requests: cfg.Server.RateLimit.Requests,
					Window:   cfg.RateWindow(),
				},
				Log: rt.Log,
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			server.StartWebhooks(ctx, rt.Engine, rt.Log)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			rt.Log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving CMMS API (OpenAPI at <base>/openapi.json, Swagger UI at /docs)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from cmms.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from cmms.yml)")
	cmd.Flags().BoolVar(&allowHeader, "allow-staff-header", false, "accept X-Staff-Id without a token (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

// --- helpers ---

func openRuntime() (*app.Runtime, error) {
	return app.Open(app.Options{
		Workspace: viper.GetString("workspace"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
		RedisURL:  viper.GetString("redis-url"),
		LogLevel:  viper.GetString("log-level"),
		LogOutput: os.Stderr,
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, rt.Engine)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(v any, summary string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(summary)
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: want RFC3339", s)
	}
	return &t, nil
}
