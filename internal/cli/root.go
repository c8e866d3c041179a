package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/scd2/internal/config"
	"github.com/roach88/scd2/internal/engine"
)

// RootOptions holds global flags for all commands and the settings they
// resolve to.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Flag targets. Config resolution reads them through viper, so only
	// flags set on the command line take effect.
	DB        string
	Specs     string
	Timezone  string
	Workers   int
	LogLevel  string
	LogFormat string

	// Resolved by PersistentPreRunE.
	Config   *config.Config
	Location *time.Location
	Logger   *slog.Logger

	// Clock and RunIDs default to the wall clock and UUIDv7. Tests override them.
	Clock  engine.RunClock
	RunIDs engine.RunIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the scd2 CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scd2",
		Short: "scd2 - slowly changing dimension reconciliation",
		Long: `Maintain Type 2 slowly changing dimension tables.

Each run compares a source snapshot against the stored target table and
closes versions that disappeared, opens versions that appeared and keeps
everything else untouched.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if !isValidFormat(opts.Format) {
				err = NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			} else {
				err = opts.resolve(cmd)
			}
			// Commands report their own failures; setup failures happen
			// before any formatter exists.
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
			return err
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default ./"+config.DefaultConfigFile+" when present)")
	flags.StringVar(&opts.DB, "db", "", "store DSN: SQLite path or duckdb://path")
	flags.StringVar(&opts.Specs, "specs", "", "directory of CUE dimension definitions")
	flags.StringVar(&opts.Timezone, "timezone", "", "zone for timestamps given without an offset")
	flags.IntVar(&opts.Workers, "workers", 0, "fingerprint workers (0 = GOMAXPROCS)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewAsOfCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// resolve loads configuration and sets up logging.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	config.LoadDotEnv()

	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}
	cfg, err := config.Load(v, o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "config", err)
	}

	o.Config = cfg
	o.Location = loc
	o.Logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat, o.Verbose)
	slog.SetDefault(o.Logger)

	if o.Clock == nil {
		o.Clock = engine.SystemClock{}
	}
	if o.RunIDs == nil {
		o.RunIDs = engine.UUIDv7Generator{}
	}

	o.Logger.Debug("config resolved",
		"config_file", cfg.ConfigFile,
		"db", cfg.DB,
		"specs", cfg.Specs,
		"timezone", cfg.Timezone,
		"workers", cfg.Workers,
	)
	return nil
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// newLogger builds the process logger. Verbose forces debug.
func newLogger(w io.Writer, level, format string, verbose bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
