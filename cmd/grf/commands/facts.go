package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-region-facts/pkg/cache"
	"github.com/l3aro/go-region-facts/pkg/facts"
)

// StoreReport summarizes one entry of a fact store.
type StoreReport struct {
	DefID     string                 `json:"def_id" yaml:"def_id"`
	SessionID string                 `json:"session_id" yaml:"session_id"`
	SavedAt   time.Time              `json:"saved_at" yaml:"saved_at"`
	Counts    map[facts.Relation]int `json:"counts" yaml:"counts"`
	Rows      [][]uint32             `json:"rows,omitempty" yaml:"rows,omitempty"`
}

func newFactsCmd(st *state) *cobra.Command {
	var (
		format    string
		relation  string
		procedure string
	)

	cmd := &cobra.Command{
		Use:   "facts <store.msgpack>",
		Short: "Inspect a persisted fact store",
		Long: `Reads a fact store written by "grf enrich --format msgpack" or by the
cache directory and prints the relation sizes of each procedure. With
--relation the rows of that relation are printed as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := outputFormat(format, "text")
			if err != nil {
				return err
			}
			if out == "msgpack" {
				return fmt.Errorf("facts does not support msgpack output")
			}
			if relation != "" {
				if _, ok := facts.Schema[facts.Relation(relation)]; !ok {
					return fmt.Errorf("unknown relation: %s", relation)
				}
			}

			stored, err := cache.LoadFile(args[0])
			if err != nil {
				return err
			}
			if stored == nil {
				return fmt.Errorf("no fact store at %s", args[0])
			}

			var reports []StoreReport
			for _, s := range stored {
				if procedure != "" && s.DefID != procedure {
					continue
				}
				r := StoreReport{DefID: s.DefID, SessionID: s.SessionID, SavedAt: s.SavedAt, Counts: s.Facts.Counts()}
				if relation != "" {
					r.Rows = s.Facts.SortedRows(facts.Relation(relation))
				}
				reports = append(reports, r)
			}
			st.logger.Debug("fact store loaded", "path", args[0], "entries", len(stored))

			if out == "text" {
				printStore(cmd.OutOrStdout(), args[0], facts.Relation(relation), reports)
				return nil
			}
			return writeStructured(cmd.OutOrStdout(), out, reports)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json or yaml")
	cmd.Flags().StringVarP(&relation, "relation", "r", "", "Print the rows of this relation")
	cmd.Flags().StringVarP(&procedure, "procedure", "p", "", "Only show this procedure")
	return cmd
}

func printStore(w io.Writer, path string, relation facts.Relation, reports []StoreReport) {
	fmt.Fprintf(w, "=== Fact store: %s ===\n", path)
	for _, r := range reports {
		fmt.Fprintf(w, "\n%s (session %s, saved %s)\n", r.DefID, r.SessionID, r.SavedAt.Format(time.RFC3339))
		for _, rel := range facts.Order {
			if n := r.Counts[rel]; n > 0 {
				fmt.Fprintf(w, "  %-26s %d\n", rel, n)
			}
		}
		if relation != "" {
			fmt.Fprintf(w, "  %s:\n", relation)
			for _, row := range r.Rows {
				fmt.Fprintf(w, "    %v\n", row)
			}
		}
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List the fact relations",
		Args:  cobra.NoArgs,
		// The schema is static; skip loading config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(facts.Schema))
			for rel := range facts.Schema {
				names = append(names, string(rel))
			}
			sort.Strings(names)

			w := cmd.OutOrStdout()
			for _, name := range names {
				info := facts.Schema[facts.Relation(name)]
				fmt.Fprintf(w, "%-26s %d  %s\n", name, info.Arity, info.Description)
			}
			return nil
		},
	}
}
