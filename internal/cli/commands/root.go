package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/crudkit/internal/cli/config"
	"github.com/conduit-lang/crudkit/internal/cli/ui"
	"github.com/conduit-lang/crudkit/internal/crud/response"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// ErrRequestFailed is returned by commands whose request did not succeed;
// the response errors have already been printed
var ErrRequestFailed = errors.New("request failed")

// globals holds the persistent flags and the test environment
type globals struct {
	configPath string
	noColor    bool
	jsonOutput bool
	metrics    bool
	env        Environment
}

// NewRootCommand creates the root command
func NewRootCommand(env Environment) *cobra.Command {
	g := &globals{env: env}

	rootCmd := &cobra.Command{
		Use:   "crudkit",
		Short: "Declarative CRUD requests against SQL or in-memory storage",
		Long: color.CyanString(`crudkit - declarative request execution

Every command sends one request object through the crudkit engine. What the
request does is decided by the profiles configured for its type: selectors,
filters, sorting, hooks and error handling.

Storage is SQLite by default. Set database.driver to pgx or postgres for
PostgreSQL, or memory for a throwaway store. Set redis.addr to keep an
audit trail of every change.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Config file (default ./crudkit.yaml)")
	flags.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&g.jsonOutput, "json", false, "Print results as JSON")
	flags.BoolVar(&g.metrics, "metrics", false, "Print request counters after the command")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewCompletionCommand())
	rootCmd.AddCommand(newUsersCommand(g))
	rootCmd.AddCommand(newAuditCommand(g))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the crudkit version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("crudkit version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// run loads the configuration, builds the app and hands it to fn
func (g *globals) run(cmd *cobra.Command, fn func(app *App) error) error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}

	app, err := NewApp(cmd.Context(), cfg, g.env)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := fn(app); err != nil {
		return err
	}
	if g.metrics {
		return g.printCounts(cmd.ErrOrStderr(), app)
	}
	return nil
}

// check prints the errors of a failed response
func (g *globals) check(cmd *cobra.Command, resp response.Response) error {
	if resp.OK() {
		return nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), ui.FormatResponse(resp, g.noColor))
	if resp.Canceled {
		return response.ErrCanceled
	}
	return ErrRequestFailed
}

// printJSON writes v indented when --json is set and reports whether it did
func (g *globals) printJSON(w io.Writer, v any) (bool, error) {
	if !g.jsonOutput {
		return false, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

func (g *globals) printCounts(w io.Writer, app *App) error {
	counts, err := app.RequestCounts()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := ui.NewKeyValueTable(w, g.noColor)
	for _, k := range keys {
		kv.AddRow(k, counts[k])
	}
	kv.Render()
	return nil
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand(Environment{})
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, ErrRequestFailed) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}
