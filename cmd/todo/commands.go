package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"todo-sync/internal/client"
	"todo-sync/internal/kv"
	"todo-sync/internal/local"
	"todo-sync/internal/migrate"
	"todo-sync/internal/models"
	"todo-sync/internal/store"
)

var listFilter string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show todos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := models.ParseFilter(listFilter)
		if err != nil {
			return err
		}
		return withSession(cmd, func(s *store.Store) error {
			s.SetFilter(filter)
			return nil
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add <text>...",
	Short: "Add a todo",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *store.Store) error {
			todo, err := s.Add(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if todo == nil {
				return errors.New("todo text must not be empty")
			}
			return nil
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id>...",
	Short: "Flip todos between active and completed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *store.Store) error {
			for _, arg := range args {
				id, err := resolveID(s.Todos(), arg)
				if err != nil {
					return err
				}
				if err := s.Toggle(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <text>...",
	Short: "Replace a todo's text",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		if _, ok := models.NormalizeText(text); !ok {
			return errors.New("todo text must not be empty")
		}
		return withSession(cmd, func(s *store.Store) error {
			id, err := resolveID(s.Todos(), args[0])
			if err != nil {
				return err
			}
			return s.Edit(cmd.Context(), id, text)
		})
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>...",
	Aliases: []string{"delete"},
	Short:   "Delete todos",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *store.Store) error {
			for _, arg := range args {
				id, err := resolveID(s.Todos(), arg)
				if err != nil {
					return err
				}
				if err := s.Delete(cmd.Context(), id); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var clearCompletedCmd = &cobra.Command{
	Use:   "clear-completed",
	Short: "Delete every completed todo",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *store.Store) error {
			n, err := s.ClearCompleted(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed %s\n", n, plural(n, "todo", "todos"))
			return nil
		})
	},
}

var toggleAllCmd = &cobra.Command{
	Use:   "toggle-all",
	Short: "Complete every todo, or reopen them all when all are done",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *store.Store) error {
			return s.ToggleAll(cmd.Context())
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer sess.Close()
		st := sess.store.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "total: %d\nactive: %d\ncompleted: %d\n", st.Total, st.Active, st.Completed)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy local todos to the todo server",
	Long: `Copy every todo from the local bolt file to the todo server at --url.

Todos the server already has are skipped, so running it twice is safe.
The local file is left as it is.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		db, err := kv.OpenBolt(cfg.DBPath, "")
		if err != nil {
			return err
		}
		defer db.Close()
		remote := client.New(cfg.APIURL, client.WithTimeout(cfg.Timeout.Duration))
		report, err := migrate.Run(cmd.Context(), local.New(db), remote)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s\n", report)
		if report.Failed > 0 {
			return fmt.Errorf("%d %s could not be migrated", report.Failed, plural(report.Failed, "todo", "todos"))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "all", "all, active or completed")
	rootCmd.AddCommand(listCmd, addCmd, toggleCmd, editCmd, rmCmd, clearCompletedCmd, toggleAllCmd, statsCmd, migrateCmd)
}

// withSession opens a session, runs fn and prints the resulting view.
func withSession(cmd *cobra.Command, fn func(*store.Store) error) error {
	sess, err := openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := fn(sess.store); err != nil {
		return err
	}
	render(cmd.OutOrStdout(), sess.store.Snapshot())
	return nil
}

// resolveID accepts a full id or an unambiguous prefix of one. A full id wins
// over longer ids it happens to prefix.
func resolveID(todos []models.Todo, arg string) (string, error) {
	for _, t := range todos {
		if t.ID == arg {
			return arg, nil
		}
	}
	var match string
	for _, t := range todos {
		if !strings.HasPrefix(t.ID, arg) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("id prefix %q is ambiguous", arg)
		}
		match = t.ID
	}
	if match == "" {
		return "", fmt.Errorf("no todo with id %q", arg)
	}
	return match, nil
}
