package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/crudkit/internal/cli/ui"
)

// ErrAuditDisabled is returned by the audit command when no Redis is configured
var ErrAuditDisabled = errors.New("audit trail disabled: set redis.addr")

func newAuditCommand(g *globals) *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the most recent changes",
		Long: `Show the most recent entries of the audit trail kept in Redis, newest
first. Every create, update and delete sent through crudkit is recorded
with its changed fields.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(app *App) error {
				if app.Audit == nil {
					return ErrAuditDisabled
				}
				entries, err := app.Audit.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ok, err := g.printJSON(cmd.OutOrStdout(), entries); ok {
					return err
				}

				table := ui.NewTable(cmd.OutOrStdout(), g.noColor, "AT", "ACTION", "ENTITY", "ID", "CHANGES")
				for _, e := range entries {
					fields := make([]string, len(e.Changes))
					for i, c := range e.Changes {
						fields[i] = c.Field
					}
					table.AddRow(
						e.At.Local().Format(time.DateTime),
						string(e.Action),
						e.Entity,
						fmt.Sprint(e.EntityID),
						strings.Join(fields, ","),
					)
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64VarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}
