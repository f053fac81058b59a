package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Awaisee01/fund-sub001/internal/config"
	"github.com/Awaisee01/fund-sub001/internal/database"
	"github.com/Awaisee01/fund-sub001/internal/log"
	"github.com/Awaisee01/fund-sub001/internal/repository"
	"github.com/Awaisee01/fund-sub001/internal/service"
)

const passwordEnv = "GRANTLEADS_ADMIN_PASSWORD"

type app struct {
	cfg    *config.AppConfig
	logger zerolog.Logger
	pool   *pgxpool.Pool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "adminctl",
		Short:        "Manage admin accounts and the database schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.connect(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.pool != nil {
				a.pool.Close()
			}
		},
	}

	var passwordStdin bool
	readPassword := func(cmd *cobra.Command) (string, error) {
		if passwordStdin {
			return readLine(cmd.InOrStdin())
		}
		if pw := os.Getenv(passwordEnv); pw != "" {
			return pw, nil
		}
		return "", fmt.Errorf("password required: set %s or pass --password-stdin", passwordEnv)
	}

	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an admin; TOTP is enrolled on first login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			admin, err := a.authService().CreateAdmin(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", admin.Email, admin.ID)
			return nil
		},
	}
	create.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	reset := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Set a new password and clear the TOTP enrolment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			if err := a.authService().ResetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s; TOTP must be enrolled again\n", args[0])
			return nil
		},
	}
	reset.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	deactivate := &cobra.Command{
		Use:   "deactivate <email>",
		Short: "Disable an admin; existing sessions stop validating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.authService().Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
			return nil
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.Migrate(cmd.Context(), a.pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}

	var auditLimit int
	audit := &cobra.Command{
		Use:   "audit <email>",
		Short: "Print the most recent audit entries for an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := repository.NewAdminRepository(a.pool).FindByEmail(cmd.Context(), strings.ToLower(strings.TrimSpace(args[0])))
			if err != nil {
				return err
			}
			entries, err := repository.NewAuditRepository(a.pool).ListByAdmin(cmd.Context(), admin.ID, auditLimit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%-28s\t%s\n", e.CreatedAt.UTC().Format(time.RFC3339), e.Action, e.IPAddress)
			}
			return nil
		},
	}
	audit.Flags().IntVar(&auditLimit, "limit", 50, "number of entries to show")

	root.AddCommand(create, reset, deactivate, migrate, audit)
	return root
}

func (a *app) connect(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log.New(cfg.Environment)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool
	return nil
}

func (a *app) authService() *service.AdminAuthService {
	return service.NewAdminAuthService(
		repository.NewAdminRepository(a.pool),
		repository.NewSessionRepository(a.pool),
		repository.NewAuditRepository(a.pool),
		a.cfg.Security,
		a.logger,
	)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("read password: empty input")
	}
	return line, nil
}
