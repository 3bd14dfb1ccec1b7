package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gosuri/uitable"
	"github.com/inaciog/reminders-app/internal/app"
	"github.com/inaciog/reminders-app/internal/assistant"
	"github.com/inaciog/reminders-app/internal/config"
	"github.com/inaciog/reminders-app/internal/tui"
	"github.com/spf13/cobra"
)

func newServeCmd(e *env) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web app, API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.cfg
			if listen != "" {
				cfg.Listen = listen
			}
			logger := e.logger()
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the config value")
	return cmd
}

func newBackupCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Take a backup on the server now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.client().Backup(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backup %s (%d bytes), pruned %d\n", res.File, res.Bytes, res.Pruned)
			if res.RemoteStatus != "" {
				fmt.Fprintf(out, "remote: %s", res.RemoteStatus)
				if res.RemoteError != "" {
					fmt.Fprintf(out, " (%s)", res.RemoteError)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newBackupsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backups on the server, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := e.client().Backups(cmd.Context())
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no backups")
				return nil
			}
			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("NAME", "SIZE", "MODIFIED", "STATUS", "REMOTE")
			for _, f := range files {
				table.AddRow(f.Name, f.Size, f.Modified.Local().Format("2006-01-02 15:04"), dash(f.Status), dash(f.RemoteStatus))
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newRestoreCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup file>",
		Short: "Replace the server's data with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := e.client().Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s: %d folders, %d reminders\n", args[0], res.Folders, res.Reminders)
			return nil
		},
	}
}

func newTUICmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal UI against a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := e.client()
			if c.Assistant() {
				return errors.New("the terminal UI needs the full API; drop --secret")
			}
			program := tea.NewProgram(tui.New(c), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err := program.Run()
			return err
		},
	}
}

func newMCPCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant tools over MCP stdio",
		Long: `Serve create_reminder, list_reminders, reminder_stats and bulk_reminders
to an MCP client over stdin/stdout. Requests go to the server's /api/external
endpoints with the assistant secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := e.client()
			if !c.Assistant() {
				return errors.New("mcp needs the assistant secret (--secret or REMINDERS_ASSISTANT_SECRET)")
			}
			e.logger().Info("mcp bridge ready", "server", c.BaseURL())
			return assistant.Serve(c, Version)
		},
	}
}

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "example",
		Short: "Print a TOML config with the effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.WriteExample(cmd.OutOrStdout(), e.cfg)
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skips config loading so a broken config never hides the version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "reminders %s\n", Version)
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
