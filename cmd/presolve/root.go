package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	console "github.com/phsym/console-slog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgorny/pkgcore/resolver"
)

// globalFlags holds the persistent flags shared by every subcommand,
// the same single-struct-of-persistent-flags shape root.go uses for
// dot's global configuration.
type globalFlags struct {
	configFile string
	repoDir    string
	vdbFile    string
	updatesDir string
	logLevel   string
	logJSON    bool
}

var global globalFlags

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "presolve",
		Short:         "Resolve ebuild dependency sets and emit merge plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&global.configFile, "config", "", "path to a TOML configuration file")
	root.PersistentFlags().StringVar(&global.repoDir, "repo", "", "path to a package-set TOML file describing the repository (see DESIGN.md)")
	root.PersistentFlags().StringVar(&global.vdbFile, "vdb", "", "path to the installed-package TOML file")
	root.PersistentFlags().StringVar(&global.updatesDir, "updates", "", "path to a profiles directory whose updates/ subdirectory holds move/slotmove directives")
	root.PersistentFlags().StringVar(&global.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&global.logJSON, "log-json", false, "emit structured JSON logs instead of console output")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		v, err := loadViperConfig()
		if err != nil {
			return err
		}
		// Config file values only fill in flags the user did not set on
		// the command line, so an explicit flag always wins over the file.
		if !cmd.Flags().Changed("repo") && v.IsSet("repo") {
			global.repoDir = v.GetString("repo")
		}
		if !cmd.Flags().Changed("vdb") && v.IsSet("vdb") {
			global.vdbFile = v.GetString("vdb")
		}
		if !cmd.Flags().Changed("updates") && v.IsSet("updates") {
			global.updatesDir = v.GetString("updates")
		}
		if !cmd.Flags().Changed("log-level") && v.IsSet("log_level") {
			global.logLevel = v.GetString("log_level")
		}
		return nil
	}

	root.AddCommand(newResolveCommand())
	root.AddCommand(newUnmergeCommand())
	root.AddCommand(newListUpdatesCommand())
	return root
}

func newLogger(w io.Writer) *slog.Logger {
	level := parseLevel(global.logLevel)
	if global.logJSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(console.NewHandler(w, &console.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadViperConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("PRESOLVE")
	v.AutomaticEnv()
	if global.configFile != "" {
		v.SetConfigFile(global.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("presolve: reading config %s: %w", global.configFile, err)
		}
	}
	return v, nil
}

// exitCode maps a resolve/unmerge error to the exit codes the
// external-interfaces contract specifies: 0 success, 1 generic
// failure, 2 ambiguous set/atom reference, nonzero for any unresolved
// target unless --ignore-failures was set (in which case run()'s
// caller never sees the error at all).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ambiguous *resolver.AmbiguousQueryError
	if errors.As(err, &ambiguous) {
		return 2
	}
	return 1
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "presolve:", err)
	}
	return exitCode(err)
}
