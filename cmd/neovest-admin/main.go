package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"neovest/internal/cli"
	"neovest/internal/config"
	applog "neovest/internal/log"
	"neovest/internal/storage"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

// app carries what PersistentPreRunE resolved for the subcommands.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
	dbPath string
	loc    *time.Location
}

func (a *app) openRepo() (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.dbPath, err)
	}
	return repo, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		dbFlag string
		tzFlag string
	)

	root := &cobra.Command{
		Use:           "neovest-admin",
		Short:         "Operate a NeoVest SQLite database",
		Long:          `Administrative commands for NeoVest: schema migrations, users, expenses and export state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			a.cfg = config.Load()
			a.logger = applog.New(applog.Config{
				Level:     applog.ParseLevel(a.cfg.LogLevel),
				Component: applog.ComponentAdmin,
				Output:    cmd.ErrOrStderr(),
			})
			applog.SetDefault(a.logger)

			a.dbPath = a.cfg.SQLiteDBPath
			if dbFlag != "" {
				a.dbPath = dbFlag
			}
			if tzFlag != "" {
				a.cfg.Timezone = tzFlag
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			a.loc = loc
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (default: $SQLITE_DB_PATH)")
	root.PersistentFlags().StringVar(&tzFlag, "timezone", "", "timezone for month boundaries (default: $APP_TIMEZONE)")

	root.AddCommand(migrateCmd(a))
	root.AddCommand(usersCmd(a))
	root.AddCommand(expensesCmd(a))
	root.AddCommand(statsCmd(a))
	root.AddCommand(exportCmd(a))
	root.AddCommand(sessionsCmd(a))
	root.AddCommand(recommendationsCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
