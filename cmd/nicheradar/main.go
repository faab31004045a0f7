package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "nicheradar"
	version = "v1.0.0"
)

// usageError is reported on stdout as {"error": msg} with exit code 1
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

var errNoTopic = usageError{msg: "No topic provided"}

// options holds the persistent flags shared by every command
type options struct {
	configPath      string
	logLevel        string
	pretty          bool
	metricsTextfile string
	source          string
	fixture         string
	attempts        int
}

// register binds the persistent flags. Zero values leave the config untouched.
func (o *options) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", "", "YAML config path (default config.yaml when present)")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flags.BoolVar(&o.pretty, "pretty", isTerminal(os.Stdout), "Indent JSON output")
	flags.StringVar(&o.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	flags.StringVar(&o.source, "source", "", "Trend source (googletrends|fixture)")
	flags.StringVar(&o.fixture, "fixture", "", "Fixture document for the fixture source")
	flags.IntVar(&o.attempts, "attempts", 0, "Fetch attempts before falling back to synthetic data")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var uerr usageError
	if errors.As(err, &uerr) {
		writeErrorJSON(stdout, uerr.msg)
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     appName + " <topic>",
		Short:   "Score a niche topic by search trend momentum",
		Version: version,
		Long: `nicheradar fetches search interest for a topic, derives a niche opportunity
score with competition and revenue estimates, and prints one JSON report.

When the trend source is unavailable the report is synthetic and marked is_mock.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel, stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, opts, args, stdout)
		},
	}
	rootCmd.SetOut(stderr)
	rootCmd.SetErr(stderr)

	opts.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newScoreCmd(opts, stdout))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts, stdout))
	return rootCmd
}

// setupLogging sends logs to stderr, as console output on a TTY and JSON lines otherwise
func setupLogging(level string, stderr io.Writer) error {
	zerolog.TimeFieldFormat = time.RFC3339
	if isTerminal(stderr) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(stderr).With().Timestamp().Logger()
	}
	return applyLogLevel(level)
}

func applyLogLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func writeErrorJSON(w io.Writer, msg string) {
	quoted, _ := json.Marshal(msg)
	fmt.Fprintf(w, "{\"error\": %s}\n", quoted)
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
