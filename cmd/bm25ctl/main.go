// Command bm25ctl is a standalone demo harness for the index core: it
// wires an Index to hosttest's in-memory host implementation and
// drives it through the same callback surface a real access method
// would call (build, insert, search, vacuum, merge, explain), so the
// whole pipeline can be exercised from a terminal without a database
// attached.
//
// Nothing here persists across process runs: hosttest's Buffer lives
// in memory only, so every subcommand seeds a fresh index, runs a
// canned batch of rows through it, and prints what happened. This
// mirrors spec.md §8's scenario walkthroughs (S1-S6) rather than
// offering a general-purpose ingestion tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/epokhe/bm25am/host"
	"github.com/epokhe/bm25am/hosttest"
	"github.com/epokhe/bm25am/index"
	"github.com/epokhe/bm25am/internal/execscan"
	"github.com/epokhe/bm25am/internal/invidx"
	"github.com/epokhe/bm25am/pkg/segment"
	"github.com/epokhe/bm25am/query"
	"github.com/epokhe/bm25am/schema"
)

// collectHits drains scan via execscan.CollectTopK, which treats k<=0
// as unbounded.
func collectHits(scan *execscan.Scan, k int) []execscan.Hit {
	return execscan.CollectTopK(scan, k)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bm25ctl",
		Short:         "Exercise the BM25 index core against an in-memory host",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newBuildCmd(),
		newInsertCmd(),
		newSearchCmd(),
		newVacuumCmd(),
		newMergeCmd(),
		newExplainCmd(),
	)
	return root
}

// demoRows is the row set every subcommand seeds its scratch index
// with, small enough to read at a glance and varied enough to exercise
// term matching, BM25 scoring differences and fast-field filtering.
var demoRows = []struct {
	Row   host.RowID
	Body  string
	Price int64
}{
	{Row: 1, Body: "the quick brown fox jumps over the lazy dog", Price: 10},
	{Row: 2, Body: "the lazy dog sleeps all afternoon", Price: 20},
	{Row: 3, Body: "quick foxes and quick dogs run fast", Price: 30},
	{Row: 4, Body: "a slow turtle ambles along the path", Price: 40},
}

func demoSchema() *schema.Config {
	return schema.New(
		schema.WithKeyField("row"),
		schema.WithTextField("body", schema.TextFieldOptions{Tokenizer: "default"}),
		schema.WithNumericField("price", schema.TypeI64),
	)
}

// seedIndex builds a brand-new index over a fresh hosttest host, then
// runs every row in demoRows through one committed writer transaction
// so callers land with a realistic multi-document, single-segment
// starting point.
func seedIndex(log *zap.Logger) (*index.Index, *hosttest.Host, host.Snapshot, error) {
	h := hosttest.New()
	cfg := demoSchema()

	idx, err := index.BuildEmpty(log, h.Buf, h.WAL, host.MainFork, cfg, h.Vis)
	if err != nil {
		return nil, nil, host.Snapshot{}, fmt.Errorf("build empty: %w", err)
	}
	// Reopen through Open the way a host process would after a restart,
	// following the Metadata Page back to the directory and fsm roots
	// instead of remembering any block number itself.
	idx, err = index.Open(log, h.Buf, h.WAL, host.MainFork, cfg, h.Vis)
	if err != nil {
		return nil, nil, host.Snapshot{}, fmt.Errorf("reopen: %w", err)
	}

	txid := h.Txn.Begin()
	w := idx.NewWriter()
	w.Begin(txid)
	for _, row := range demoRows {
		fields := []invidx.FieldValue{
			{Name: "body", Type: invidx.FieldText, Text: row.Body},
			{Name: "price", Type: invidx.FieldI64, Num: row.Price},
		}
		if err := w.Insert(row.Row, nil, fields); err != nil {
			return nil, nil, host.Snapshot{}, fmt.Errorf("insert row %d: %w", row.Row, err)
		}
	}
	if _, err := w.Commit(); err != nil {
		return nil, nil, host.Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	h.Txn.Commit(txid)

	return idx, h, h.Txn.Snapshot(), nil
}

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build an empty index and confirm its roots were recorded in the metadata page",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewExample()
			defer log.Sync() // nolint:errcheck

			h := hosttest.New()
			if _, err := index.BuildEmpty(log, h.Buf, h.WAL, host.MainFork, demoSchema(), h.Vis); err != nil {
				return err
			}
			fmt.Println("index built; roots recorded in the metadata page at block 0")
			return nil
		},
	}
}

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert",
		Short: "Seed an index with the demo row set and report the committed segment count",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewExample()
			defer log.Sync() // nolint:errcheck

			idx, _, _, err := seedIndex(log)
			if err != nil {
				return err
			}
			rows, segments, err := idx.CostEstimate()
			if err != nil {
				return err
			}
			fmt.Printf("live rows:    %d\n", rows)
			fmt.Printf("live segments: %d\n", segments)
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var q string
	var topK int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a query string against the demo index and print ranked hits",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewExample()
			defer log.Sync() // nolint:errcheck

			idx, _, snap, err := seedIndex(log)
			if err != nil {
				return err
			}

			in := query.Parse("body", q)
			scan, err := idx.ScanWith(snap, in, topK)
			if err != nil {
				return err
			}
			hits := collectHits(scan, topK)
			if len(hits) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, hit := range hits {
				fmt.Printf("row=%d score=%.4f\n", hit.RowID, hit.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&q, "query", "q", "quick fox", "query string (default-field:term, -term, field:term)")
	cmd.Flags().IntVarP(&topK, "limit", "k", 0, "top-k limit, 0 for unbounded")
	return cmd
}

func newVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Delete row 2, bulk_delete it out of the index, then reclaim reclaimable segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewExample()
			defer log.Sync() // nolint:errcheck

			idx, h, _, err := seedIndex(log)
			if err != nil {
				return err
			}

			h.Vis.Hide(2)
			deleted, err := idx.BulkDelete(func(rowID uint64) (bool, error) {
				visible, err := h.Vis.FetchAndCheck(host.RowID(rowID), h.Txn.Snapshot())
				if err != nil {
					return false, err
				}
				return !visible, nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("rows marked deleted: %d\n", deleted)

			if err := idx.VacuumCleanup(func() uint32 { return uint32(h.Txn.Snapshot().XMin) }); err != nil {
				return err
			}
			fmt.Println("vacuum cleanup complete")
			return nil
		},
	}
}

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Run one merge pass over the demo index's live segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewExample()
			defer log.Sync() // nolint:errcheck

			idx, h, _, err := seedIndex(log)
			if err != nil {
				return err
			}

			txm := h.Txn.Begin()
			id, err := idx.RunMerge(txm)
			if err != nil {
				return err
			}
			h.Txn.Commit(txm)

			if id == (segment.ID{}) {
				fmt.Println("no merge candidates below target segment count")
				return nil
			}
			fmt.Printf("merged into segment: %s\n", id.String())
			return nil
		},
	}
}

func newExplainCmd() *cobra.Command {
	var q string
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print which execution method a query would take and how many segments it touches",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zap.NewExample()
			defer log.Sync() // nolint:errcheck

			idx, _, snap, err := seedIndex(log)
			if err != nil {
				return err
			}
			in := query.Parse("body", q)
			scan, err := idx.ScanWith(snap, in, 0)
			if err != nil {
				return err
			}
			hits := collectHits(scan, 0)
			info := idx.Explain(scan, len(hits))
			fmt.Printf("method:        %s\n", info.Method)
			fmt.Printf("segments:      %d\n", info.SegmentCount)
			fmt.Printf("rows produced: %d\n", info.RowsProduced)
			return nil
		},
	}
	cmd.Flags().StringVarP(&q, "query", "q", "quick", "query string")
	return cmd
}
