package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/creastat/sessionstore/internal/config"
	"github.com/creastat/sessionstore/session"
)

var errNotFound = errors.New("session not found")

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create an empty session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.repo.Create(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID())
			return nil
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> [attribute...]",
		Short: "Print a session's metadata and attributes",
		Long: `Print a session's metadata and attributes.

With attribute names, only those attributes are printed. Attributes that
cannot be decoded by this build are reported on stderr.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := load(ctx, a.repo, args[0])
			if err != nil {
				return err
			}

			names := args[1:]
			if len(names) == 0 {
				names = s.AttributeNames()
			}

			out := cmd.OutOrStdout()
			printMetadata(out, s)
			fmt.Fprintln(out, "attributes:")
			for _, name := range names {
				v, ok, err := s.Get(ctx, name)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				fmt.Fprintf(out, "  %s = %v (%T)\n", name, v, v)
			}

			if err := s.DecodeErrors(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "undecodable:", err)
			}
			return nil
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "set <id> <attribute> <value>",
		Short: "Set one attribute of a session",
		Long: `Set one attribute of a session.

The value is stored as a string unless --type names another type:
int, int64, float, bool, duration or time (RFC 3339).`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(kind, args[2])
			if err != nil {
				return err
			}
			return update(cmd.Context(), a.repo, args[0], func(s *session.Session) {
				s.Set(args[1], value)
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "string", "value type")
	return cmd
}

func newUnsetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <id> <attribute>",
		Short: "Remove one attribute of a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return update(cmd.Context(), a.repo, args[0], func(s *session.Session) {
				s.Remove(args[1])
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and all its attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.repo.Delete(cmd.Context(), args[0])
		},
	}
}

func newSweepCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Enforce max_active_sessions periodically until interrupted",
		Long: `Every interval, list the sessions stored under the configured template,
including those created by other nodes, and evict the least recently accessed
ones beyond max_active_sessions. Sessions idle past their max inactive interval
are removed on the way.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive, got %s", interval)
			}
			err := a.repo.Sweep(cmd.Context(), interval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Minute, "time between capacity checks")
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write the default configuration file",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			return config.WriteDefault(args[0])
		},
	}
}

func load(ctx context.Context, repo *session.Repository, id string) (*session.Session, error) {
	s, err := repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", errNotFound, id)
	}
	return s, nil
}

func update(ctx context.Context, repo *session.Repository, id string, change func(*session.Session)) error {
	s, err := load(ctx, repo, id)
	if err != nil {
		return err
	}
	change(s)
	return repo.Save(ctx, s)
}

func parseValue(kind, raw string) (any, error) {
	switch kind {
	case "", "string":
		return raw, nil
	case "int":
		return cast.ToIntE(raw)
	case "int64":
		return cast.ToInt64E(raw)
	case "float":
		return cast.ToFloat64E(raw)
	case "bool":
		return cast.ToBoolE(raw)
	case "duration":
		return cast.ToDurationE(raw)
	case "time":
		return cast.ToTimeE(raw)
	default:
		return nil, fmt.Errorf("unknown value type %q", kind)
	}
}

func printMetadata(w io.Writer, s *session.Session) {
	fmt.Fprintf(w, "id: %s\n", s.ID())
	fmt.Fprintf(w, "created: %s\n", s.CreationTime().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "last_accessed: %s\n", s.LastAccessedTime().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "max_inactive: %s\n", s.MaxInactiveInterval())
}
