package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/btouchard/taskboard/internal/auth"
	"github.com/btouchard/taskboard/internal/config"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
	"github.com/btouchard/taskboard/internal/user"
)

// SuperuserOptions holds flags for createsuperuser.
type SuperuserOptions struct {
	Username string
	Email    string
	Password string
}

// NewCreateSuperuserCommand creates the createsuperuser command.
func NewCreateSuperuserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuperuserOptions{}

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create the first admin account",
		Long: `Create the first admin account.

Missing values are read from standard input. The command refuses to run when
an admin already exists or when the username or email is taken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := promptMissing(cmd.InOrStdin(), cmd.OutOrStdout(), opts); err != nil {
				return err
			}
			return withUserService(cmd.Context(), cfg, func(ctx context.Context, svc *user.Service) error {
				u, err := svc.CreateSuperuser(ctx, opts.Username, opts.Email, opts.Password)
				if err != nil {
					return fmt.Errorf("creating superuser: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created (id %d)\n", u.Username, u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Username, "username", "", "admin username")
	cmd.Flags().StringVar(&opts.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "admin password (prompted when omitted)")

	return cmd
}

// NewLoadUsersCommand creates the loadusers command.
func NewLoadUsersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "loadusers <file.json>",
		Short: "Create accounts from a JSON array",
		Long: `Create accounts from a JSON array of objects with username, email,
password and role. Loading stops at the first entry that fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening users file: %w", err)
			}
			defer func() { _ = f.Close() }()

			return withUserService(cmd.Context(), cfg, func(ctx context.Context, svc *user.Service) error {
				n, err := svc.LoadUsers(ctx, f)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d user(s) loaded\n", n)
				return err
			})
		},
	}
}

// withUserService opens the database for a one-shot account operation.
// Nobody holds a push channel during these commands, so events go nowhere.
func withUserService(ctx context.Context, cfg *config.Config, fn func(context.Context, *user.Service) error) error {
	db, err := store.NewSQLiteStore(config.ExpandHome(cfg.Database.Path))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	svc := user.NewService(db, auth.NewPasswordHasher(cfg.Auth.BcryptCost), nil, notify.NewHub(notify.NewRegistry()))
	return fn(ctx, svc)
}

func promptMissing(in io.Reader, out io.Writer, opts *SuperuserOptions) error {
	r := bufio.NewReader(in)
	fields := []struct {
		label string
		dst   *string
	}{
		{"Username", &opts.Username},
		{"Email", &opts.Email},
		{"Password", &opts.Password},
	}
	for _, f := range fields {
		if *f.dst != "" {
			continue
		}
		_, _ = fmt.Fprintf(out, "%s: ", f.label)
		line, err := r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return fmt.Errorf("reading %s: %w", strings.ToLower(f.label), err)
		}
		*f.dst = strings.TrimSpace(line)
	}
	return nil
}
