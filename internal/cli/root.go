// Package cli is the reminders command tree: the server, a thin HTTP
// client for scripting, the terminal UI and the MCP bridge.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/inaciog/reminders-app/internal/client"
	"github.com/inaciog/reminders-app/internal/config"
	"github.com/inaciog/reminders-app/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

const defaultServer = "http://localhost:3000"

var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

// env carries what every subcommand shares: the layered config and the
// flags that pick a server.
type env struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
	logOutput  io.Writer
}

// NewRootCmd builds the full command tree. Tests call it directly.
func NewRootCmd() *cobra.Command {
	e := &env{v: config.NewViper(), logOutput: os.Stderr}
	e.v.SetDefault("server", defaultServer)
	e.v.SetDefault("token", "")

	root := &cobra.Command{
		Use:           "reminders",
		Short:         "Personal reminders: server, CLI and terminal UI",
		Long:          "reminders keeps to-do items in folders with due dates, priorities, #tags, subtasks and recurrence.\nRun `reminders serve` for the web app and API; the other commands talk to a running server.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(e.v, e.configFile)
			if err != nil {
				return err
			}
			e.cfg = cfg
			return nil
		},
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&e.configFile, "config", "", "config file (default: reminders.{toml,yaml,json} in $REMINDERS_CONFIG_PATH, ./ or /etc/reminders)")
	flags.String("server", defaultServer, "server base URL for client commands")
	flags.String("secret", "", "assistant shared secret; client commands then use /api/external")
	flags.String("token", "", "bearer token for an auth-gated server")
	flags.String("log-level", "", "debug, info, warn or error")
	mustBind(e.v, "server", root, "server")
	mustBind(e.v, "assistant.secret", root, "secret")
	mustBind(e.v, "token", root, "token")
	mustBind(e.v, "log.level", root, "log-level")

	root.AddCommand(
		newServeCmd(e),
		newListCmd(e),
		newTodayCmd(e),
		newAddCmd(e),
		newDoneCmd(e),
		newBackupCmd(e),
		newBackupsCmd(e),
		newRestoreCmd(e),
		newTUICmd(e),
		newMCPCmd(e),
		newConfigCmd(e),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func mustBind(v *viper.Viper, key string, cmd *cobra.Command, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func (e *env) logger() *log.Logger {
	opts := logging.DefaultOptions()
	opts.Level = e.cfg.Log.Level
	opts.Format = e.cfg.Log.Format
	opts.Output = e.logOutput
	return logging.New(opts)
}

// client talks to the configured server. A secret switches it to the
// assistant surface.
func (e *env) client() *client.Client {
	opts := []client.Option{}
	if tok := e.v.GetString("token"); tok != "" {
		opts = append(opts, client.WithToken(tok))
	}
	if secret := e.cfg.Assistant.Secret; secret != "" {
		opts = append(opts, client.WithSecret(secret))
	}
	return client.New(e.v.GetString("server"), opts...)
}
