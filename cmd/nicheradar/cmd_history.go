package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/sawpanic/nicheradar/internal/persistence"
	"github.com/sawpanic/nicheradar/internal/trends"
)

var errHistoryDisabled = errors.New("history requires a database: set PG_DSN or database.enabled")

// historyItem is a stored entry with its report inlined
type historyItem struct {
	persistence.TrendEntry
	Report     json.RawMessage              `json:"report"`
	Provenance map[string]trends.Provenance `json:"provenance,omitempty"`
}

func newHistoryCmd(opts *options, stdout io.Writer) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <topic>",
		Short: "List stored reports for a topic, newest first",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := topicArg(args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			repo := a.db.Trends()
			if repo == nil {
				return errHistoryDisabled
			}
			entries, err := repo.ListByTopic(cmd.Context(), topic, limit)
			if err != nil {
				return err
			}
			return writeJSON(stdout, historyItems(entries), opts.pretty)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", persistence.DefaultListLimit, "Maximum entries to list")
	return cmd
}

func historyItems(entries []persistence.TrendEntry) []historyItem {
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		item := historyItem{TrendEntry: e, Report: json.RawMessage(e.Report)}
		if len(e.Provenance) > 0 {
			_ = json.Unmarshal(e.Provenance, &item.Provenance)
		}
		items = append(items, item)
	}
	return items
}
