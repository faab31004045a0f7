package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sawpanic/nicheradar/internal/application/pipeline"
)

func newScoreCmd(opts *options, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "score <topic>",
		Short: "Print the opportunity report for one topic",
		Long: `Fetch trend data for the topic and print one JSON report on stdout.
Quote multi-word topics. The report is synthetic (is_mock) when every attempt fails.

Examples:
  nicheradar score sourdough
  nicheradar score "home espresso" --attempts 5
  nicheradar score sourdough --fixture examples/fixture.yaml`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, opts, args, stdout)
		},
	}
}

// topicArg accepts exactly one non-blank positional argument
func topicArg(args []string) (string, error) {
	switch {
	case len(args) == 0:
		return "", errNoTopic
	case len(args) > 1:
		return "", usageError{msg: "Too many arguments: quote multi-word topics"}
	case strings.TrimSpace(args[0]) == "":
		return "", errNoTopic
	}
	return args[0], nil
}

func runScore(cmd *cobra.Command, opts *options, args []string, stdout io.Writer) error {
	topic, err := topicArg(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, cfg.Cache.Enabled)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.analyzer.Run(cmd.Context(), topic)
	if errors.Is(err, pipeline.ErrEmptyTopic) {
		return errNoTopic
	}
	if err != nil {
		return err
	}

	a.exportMetrics(opts.metricsTextfile)
	return writeJSON(stdout, out.Report, opts.pretty)
}
