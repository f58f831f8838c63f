package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/storm-platform/storm-go/internal/app"
	"github.com/storm-platform/storm-go/internal/auth"
	"github.com/storm-platform/storm-go/internal/config"
	"github.com/storm-platform/storm-go/internal/db"
	"github.com/storm-platform/storm-go/internal/engine"
	"github.com/storm-platform/storm-go/internal/journal"
	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

var rootCmd = &cobra.Command{
	Use:   "storm",
	Short: "Storm WS client",
	Long: `storm talks to a Storm WS service: projects, research compendia and their files,
pipelines and workflows built from compendia, and the deposits and jobs run on them.
Connection settings come from storm.yml in the workspace, STORM_* variables and flags.
Membership syncs are journaled in .storm/storm.db; see 'storm log tail'.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(viper.GetBool("verbose")))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STORM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("url", "", "service url (overrides storm.yml)")
	flags.String("token", "", "access token (overrides storm.yml)")
	flags.Bool("token-in-query", false, "send the token as a query parameter")
	flags.Duration("timeout", 0, "request timeout")
	flags.StringP("project", "p", "", "project id (overrides storm.yml)")
	flags.BoolP("verbose", "v", false, "log requests to stderr")
	for _, name := range []string{"workspace", "json", "url", "token", "token-in-query", "timeout", "project", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(compendiumCmd())
	rootCmd.AddCommand(filesCmd())
	rootCmd.AddCommand(graphCmd(engine.KindPipelines, "pipeline", "Manage pipelines",
		func(p stormsdk.ProjectScope) graphAPI[*model.Pipeline] { return p.Pipelines }))
	rootCmd.AddCommand(graphCmd(engine.KindWorkflows, "workflow", "Manage workflows",
		func(p stormsdk.ProjectScope) graphAPI[*model.Workflow] { return p.Workflows }))
	rootCmd.AddCommand(runnerCmd("deposit", "Deposit projects to external services",
		func(s *stormsdk.Storm) runnerAPI[*model.Deposit, *model.DepositPluginService] { return s.Deposits() }))
	rootCmd.AddCommand(runnerCmd("job", "Run pipeline jobs",
		func(s *stormsdk.Storm) runnerAPI[*model.Job, *model.JobPluginService] { return s.Jobs() }))
	rootCmd.AddCommand(runnerCmd("execution", "Run workflow executions",
		func(s *stormsdk.Storm) runnerAPI[*model.ExecutionJob, *model.ExecutionPluginService] { return s.Executions() }))
	rootCmd.AddCommand(logCmd())
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func overrides() app.Overrides {
	return app.Overrides{
		URL:          viper.GetString("url"),
		Token:        viper.GetString("token"),
		Project:      viper.GetString("project"),
		TokenInQuery: viper.GetBool("token-in-query"),
		Timeout:      viper.GetDuration("timeout"),
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage storm.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write storm.yml for a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			o := overrides()
			if o.URL == "" {
				return fmt.Errorf("--url required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			cfg := config.Default(o.URL)
			cfg.Service.Token = o.Token
			cfg.Service.TokenInQuery = o.TokenInQuery
			cfg.Project.ID = o.Project
			if o.Timeout > 0 {
				cfg.Service.Timeout = o.Timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Write(workspace); err != nil {
				return err
			}
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing storm.yml")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Service.Token != "" {
				shown.Service.Token = "***"
			}
			if viper.GetBool("json") {
				return printJSON(shown)
			}
			out, err := yaml.Marshal(shown)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func authCmd() *cobra.Command {
	a := &cobra.Command{Use: "auth", Short: "Inspect the access token"}
	a.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show what the configured token grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
			if err != nil {
				return err
			}
			if cfg.Service.Token == "" {
				return fmt.Errorf("no token configured; pass --token or set service.token")
			}
			info, err := auth.Inspect(cfg.Service.Token)
			if errors.Is(err, auth.ErrOpaqueToken) {
				fmt.Println("opaque token; expiry is checked by the service")
				return nil
			}
			if err != nil {
				return err
			}
			expired := info.Expired(time.Now())
			if viper.GetBool("json") {
				return printJSON(map[string]any{
					"subject":    info.Subject,
					"scopes":     info.Scopes,
					"issued_at":  info.IssuedAt,
					"expires_at": info.ExpiresAt,
					"expired":    expired,
				})
			}
			fmt.Printf("Subject: %s\n", info.Subject)
			fmt.Printf("Scopes: %s\n", strings.Join(info.Scopes, " "))
			if info.ExpiresAt.IsZero() {
				fmt.Println("Expires: never")
			} else {
				fmt.Printf("Expires: %s (expired: %t)\n", info.ExpiresAt.Format(time.RFC3339), expired)
			}
			if expired {
				return fmt.Errorf("token expired at %s", info.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	})
	return a
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Browse projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var q string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				items, err := c.SDK.Projects().Search(ctx, queryParams(q))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Finished")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID(), p.Title(), p.IsFinished()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&q, "query", "q", "", "search query")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				id := c.Config.Project.ID
				if len(args) == 1 {
					id = args[0]
				}
				if id == "" {
					return fmt.Errorf("project id required")
				}
				p, err := c.SDK.Projects().Get(ctx, model.RawID(id))
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Sync journal",
		Long:  "Every membership change sent by 'storm pipeline sync' or 'storm workflow sync' is journaled locally.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest journaled operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := app.OpenJournal(ctx, viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer conn.Close()
			entries, err := journal.Journal{DB: conn}.Tail(ctx, n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(entries)
			}
			tw := newTable("Seq", "Run", "Time", "Action", "Compendium", "Status", "Error")
			for _, e := range entries {
				tw.AppendRow(table.Row{e.Seq, shortID(e.RunID), e.TS, e.Action, e.CompendiumID, e.Status, e.Error})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of operations")
	return cmd
}

// --- helpers ---

type client struct {
	Config *config.Config
	SDK    *stormsdk.Storm
	Log    *slog.Logger
}

// Project returns the services of the configured project.
func (c client) Project() (stormsdk.ProjectScope, error) {
	id, err := app.ProjectID(c.Config)
	if err != nil {
		return stormsdk.ProjectScope{}, err
	}
	return c.SDK.Project(id), nil
}

func withClient(ctx context.Context, fn func(context.Context, client) error) error {
	cfg, err := app.ResolveConfig(viper.GetString("workspace"), overrides())
	if err != nil {
		return err
	}
	log := slog.Default()
	return fn(ctx, client{Config: cfg, SDK: app.NewClient(cfg, log), Log: log})
}

func withEngine(ctx context.Context, fn func(context.Context, client, engine.Engine) error) error {
	return withClient(ctx, func(ctx context.Context, c client) error {
		e, conn, err := app.NewEngine(ctx, viper.GetString("workspace"), c.SDK, c.Log)
		if err != nil {
			return err
		}
		defer conn.Close()
		return fn(ctx, c, e)
	})
}

func queryParams(q string) url.Values {
	if q == "" {
		return nil
	}
	return url.Values{"q": {q}}
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

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
