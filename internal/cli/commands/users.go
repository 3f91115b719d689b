package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/crudkit/internal/app/users"
	"github.com/conduit-lang/crudkit/internal/cli/ui"
	"github.com/conduit-lang/crudkit/internal/crud/engine"
	"github.com/conduit-lang/crudkit/internal/crud/response"
)

// sortColumns are the values --sort accepts
var sortColumns = []string{"name", "email", "team", "id"}

func newUsersCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user directory",
		Example: `  # Add users
  crudkit users create ada@example.com --name Ada --team core
  crudkit users import bob@example.com:Bob:core carol@example.com:Carol:ops

  # Query
  crudkit users list --team core --sort email
  crudkit users page --page 2 --size 10

  # Make team core exactly these members
  crudkit users sync core ada@example.com:Ada dan@example.com:Dan`,
	}

	cmd.AddCommand(
		newUsersCreateCommand(g),
		newUsersImportCommand(g),
		newUsersListCommand(g),
		newUsersPageCommand(g),
		newUsersGetCommand(g),
		newUsersRenameCommand(g),
		newUsersDeleteCommand(g),
		newUsersSyncCommand(g),
	)
	return cmd
}

func newUsersCreateCommand(g *globals) *cobra.Command {
	req := &users.Create{}
	cmd := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Add one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Email = args[0]
			return g.run(cmd, func(app *App) error {
				resp := app.Engine.Send(cmd.Context(), req)
				if err := g.check(cmd, resp); err != nil {
					return err
				}
				return g.printUser(cmd, resp)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Team, "team", "", "Team")
	return cmd
}

func newUsersImportCommand(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import [EMAIL[:NAME[:TEAM]]...]",
		Short: "Add several users at once",
		Long: `Add several users in one request. Users are given as arguments or as a
JSON array of {"email", "name", "team"} objects in --file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseInputs(args)
			if err != nil {
				return err
			}
			if file != "" {
				fromFile, err := readInputs(file)
				if err != nil {
					return err
				}
				items = append(items, fromFile...)
			}
			if len(items) == 0 {
				return fmt.Errorf("nothing to import")
			}

			return g.run(cmd, func(app *App) error {
				resp := app.Engine.Send(cmd.Context(), &users.Import{Items: items})
				if err := g.check(cmd, resp); err != nil {
					return err
				}
				return g.printUsers(cmd, resp, fmt.Sprintf("imported %d users", len(items)))
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with users to import")
	return cmd
}

// listFlags are shared by list and page
type listFlags struct {
	team   string
	sortBy string
	desc   bool
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.team, "team", "", "Only show this team")
	cmd.Flags().StringVar(&f.sortBy, "sort", "name", "Sort column: "+strings.Join(sortColumns, ", "))
	cmd.Flags().BoolVar(&f.desc, "desc", false, "Sort descending")
	cmd.RegisterFlagCompletionFunc("sort", completeSortColumns)
}

func (f *listFlags) validate(cmd *cobra.Command, g *globals) error {
	if slices.Contains(sortColumns, f.sortBy) {
		return nil
	}
	ui.WriteError(cmd.ErrOrStderr(), ui.ErrorOptions{
		Context:     "invalid flag",
		Problem:     fmt.Sprintf("cannot sort by %q", f.sortBy),
		Suggestions: ui.Suggest(f.sortBy, sortColumns),
		NoColor:     g.noColor,
	})
	return ErrRequestFailed
}

func newUsersListCommand(g *globals) *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(cmd, g); err != nil {
				return err
			}
			return g.run(cmd, func(app *App) error {
				views, err := engine.Send[[]users.View](cmd.Context(), app.Engine,
					&users.List{Team: f.team, SortBy: f.sortBy, Desc: f.desc})
				if err != nil {
					return err
				}
				if ok, err := g.printJSON(cmd.OutOrStdout(), views); ok {
					return err
				}
				printViews(cmd, g, views)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newUsersPageCommand(g *globals) *cobra.Command {
	var f listFlags
	req := &users.Page{}
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Show one page of users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(cmd, g); err != nil {
				return err
			}
			req.Team, req.SortBy, req.Desc = f.team, f.sortBy, f.desc
			return g.run(cmd, func(app *App) error {
				resp := app.Engine.Send(cmd.Context(), req)
				if err := g.check(cmd, resp); err != nil {
					return err
				}
				page, _ := response.As[response.Page[users.View]](resp)
				if ok, err := g.printJSON(cmd.OutOrStdout(), page); ok {
					return err
				}
				printViews(cmd, g, page.Items)
				fmt.Fprintf(cmd.OutOrStdout(), "\npage %d of %d (%d users, %d per page)\n",
					page.PageNumber, page.PageCount, page.TotalItemCount, page.PageSize)
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&req.PageNumber, "page", 1, "Page number")
	cmd.Flags().IntVar(&req.PageSize, "size", 0, "Page size (default paging.default_size)")
	return cmd
}

func newUsersGetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(app *App) error {
				resp := app.Engine.Send(cmd.Context(), &users.Get{ID: id})
				if err := g.check(cmd, resp); err != nil {
					return err
				}
				return g.printUser(cmd, resp)
			})
		},
	}
}

func newUsersRenameCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Change the name of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(app *App) error {
				resp := app.Engine.Send(cmd.Context(), &users.Rename{ID: id, Name: args[1]})
				if err := g.check(cmd, resp); err != nil {
					return err
				}
				return g.printUser(cmd, resp)
			})
		},
	}
}

func newUsersDeleteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return g.run(cmd, func(app *App) error {
				resp := app.Engine.Send(cmd.Context(), &users.Delete{ID: id})
				if err := g.check(cmd, resp); err != nil {
					return err
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("deleted user %d", id), g.noColor)
				return nil
			})
		},
	}
}

func newUsersSyncCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync TEAM [EMAIL[:NAME]...]",
		Short: "Make a team exactly the given members",
		Long: `Synchronize a team with a member list. Members are matched by email:
matching users are updated, new ones are created and team members missing
from the list are deleted. An empty list empties the team.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseInputs(args[1:])
			if err != nil {
				return err
			}
			return g.run(cmd, func(app *App) error {
				resp := app.Engine.Send(cmd.Context(), &users.SyncTeam{Team: args[0], Items: items})
				if err := g.check(cmd, resp); err != nil {
					return err
				}
				return g.printUsers(cmd, resp, fmt.Sprintf("team %s has %d members", args[0], len(items)))
			})
		},
	}
}

func (g *globals) printUser(cmd *cobra.Command, resp response.Response) error {
	user, _ := response.As[*users.User](resp)
	if ok, err := g.printJSON(cmd.OutOrStdout(), user); ok || user == nil {
		return err
	}
	kv := ui.NewKeyValueTable(cmd.OutOrStdout(), g.noColor)
	kv.AddRow("id", user.ID)
	kv.AddRow("email", user.Email)
	kv.AddRow("name", user.Name)
	kv.AddRow("team", user.Team)
	kv.Render()
	return nil
}

func (g *globals) printUsers(cmd *cobra.Command, resp response.Response, summary string) error {
	list, _ := response.As[[]*users.User](resp)
	if ok, err := g.printJSON(cmd.OutOrStdout(), list); ok {
		return err
	}
	table := ui.NewTable(cmd.OutOrStdout(), g.noColor, "ID", "EMAIL", "NAME", "TEAM")
	for _, u := range list {
		table.AddRow(strconv.FormatInt(u.ID, 10), u.Email, u.Name, u.Team)
	}
	table.Render()
	ui.WriteSuccess(cmd.OutOrStdout(), summary, g.noColor)
	return nil
}

func printViews(cmd *cobra.Command, g *globals, views []users.View) {
	table := ui.NewTable(cmd.OutOrStdout(), g.noColor, "ID", "EMAIL", "NAME")
	for _, v := range views {
		table.AddRow(strconv.FormatInt(v.ID, 10), v.Email, v.Name)
	}
	table.Render()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// parseInputs reads EMAIL[:NAME[:TEAM]] arguments
func parseInputs(args []string) ([]users.Input, error) {
	items := make([]users.Input, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, ":", 3)
		if parts[0] == "" {
			return nil, fmt.Errorf("invalid user %q: email is required", arg)
		}
		in := users.Input{Email: parts[0]}
		if len(parts) > 1 {
			in.Name = parts[1]
		}
		if len(parts) > 2 {
			in.Team = parts[2]
		}
		items = append(items, in)
	}
	return items, nil
}

func readInputs(path string) ([]users.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var items []users.Input
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return items, nil
}
