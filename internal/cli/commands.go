package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/tiermem/internal/engine"
	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/memory"
)

// --- store command ---

var (
	storeTags    []string
	storeValence float64
	storeRelated []string
	storeJSON    bool
)

var storeCmd = &cobra.Command{
	Use:   "store [content]",
	Short: "Store a trace",
	Long:  "Store a trace in working memory. With --json the content is parsed as a JSON value instead of plain text.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStore,
}

func runStore(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	var content any = text
	if storeJSON {
		if err := json.Unmarshal([]byte(text), &content); err != nil {
			return fmt.Errorf("parse content: %w", err)
		}
	}

	id, err := newClient().Store(engine.StoreRequest{
		Content: content,
		Tags:    storeTags,
		Valence: storeValence,
		Related: storeRelated,
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

// --- retrieve command ---

var (
	retrieveTags        []string
	retrieveLimit       int
	retrieveMinStrength float64
	retrieveDepth       int
	retrieveWithin      time.Duration
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Retrieve traces similar to a query",
	Long:  "Rank traces by similarity, strength, recency and frequency. Retrieved traces are strengthened.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRetrieve,
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	q := engine.Query{
		Text:             strings.Join(args, " "),
		Tags:             retrieveTags,
		MinStrength:      retrieveMinStrength,
		AssociationDepth: retrieveDepth,
		Limit:            retrieveLimit,
	}
	if retrieveWithin > 0 {
		q.Since = time.Now().Add(-retrieveWithin)
	}

	res, err := newClient().Retrieve(q)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(res.Traces) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "confidence %.3f\n\n", res.Confidence)
	for i, m := range res.Traces {
		t := m.Trace
		fmt.Fprintf(out, "%d. [%.3f] %s  %s  strength %.1f\n", i+1, m.Score, t.ID, t.Tier, t.Strength)
		fmt.Fprintf(out, "   %s\n", preview(t.Content))
		if len(t.Tags) > 0 {
			fmt.Fprintf(out, "   tags: %s\n", strings.Join(t.Tags, ", "))
		}
	}
	if len(res.AssociationPaths) > 0 {
		fmt.Fprintln(out, "\nassociations:")
		for _, p := range res.AssociationPaths {
			fmt.Fprintf(out, "  %s\n", strings.Join(p.Hops, " -> "))
		}
	}
	return nil
}

// preview renders content on one line, cut to 200 chars.
func preview(content any) string {
	var s string
	switch c := content.(type) {
	case string:
		s = c
	default:
		b, _ := json.Marshal(c)
		s = string(b)
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// --- get / forget commands ---

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one trace as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().Trace(args[0])
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget [id]",
	Short: "Remove a trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Remove(args[0]); err != nil {
			return fmt.Errorf("forget: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}

// --- tick command ---

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one maintenance cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newClient().Tick()
		if err != nil {
			return fmt.Errorf("tick: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "decayed %d, promoted %d, demoted %d, deleted %d, evicted %d\n",
			r.Decayed, r.Promoted, r.Demoted, r.Deleted, r.Evicted)
		if len(r.Exhausted) > 0 {
			fmt.Fprintf(out, "over capacity with only protected traces: %s\n", strings.Join(r.Exhausted, ", "))
		}
		return nil
	},
}

// --- stats command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-tier statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().Stats()
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		printStats(cmd.OutOrStdout(), s)
		return nil
	},
}

func printStats(out io.Writer, s engine.Stats) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tCOUNT\tCAPACITY\tAVG STRENGTH\tLRU\tLFU\tMIN FREQ")
	for _, tier := range memory.Tiers {
		ts := s.Tiers[tier.String()]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%d\t%d\t%d\n",
			tier, ts.Count, ts.Capacity, ts.AverageStrength, ts.RecencySize, ts.FrequencySize, ts.MinFrequency)
	}
	tw.Flush()

	fmt.Fprintf(out, "\ntotal %d / %d, associations %d, ticks %d\n", s.Total, s.TotalCapacity, s.Associations, s.Ticks)
	fmt.Fprintf(out, "policy %s, pressure %s\n", s.Policy, s.Pressure)

	reasons := make([]string, 0, len(s.Evictions))
	for r, n := range s.Evictions {
		if n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s %d", r, n))
		}
	}
	sort.Strings(reasons)
	if len(reasons) > 0 {
		fmt.Fprintf(out, "evictions: %s\n", strings.Join(reasons, ", "))
	}
}

// --- path command ---

var pathMaxHops int

var pathCmd = &cobra.Command{
	Use:   "path [from] [to]",
	Short: "Find the shortest association path between two traces",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, found, err := newClient().Path(args[0], args[1], pathMaxHops)
		if err != nil {
			return fmt.Errorf("path: %w", err)
		}
		if !found {
			fmt.Fprintf(cmd.OutOrStdout(), "no path within %d hops\n", pathMaxHops)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(path, " -> "))
		return nil
	},
}

// --- pressure command ---

var pressureCmd = &cobra.Command{
	Use:       "pressure [none|low|medium|high|critical]",
	Short:     "Set the memory pressure level used by eviction",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"none", "low", "medium", "high", "critical"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := eviction.ParsePressure(args[0]); err != nil {
			return err
		}
		if err := newClient().SetPressure(args[0]); err != nil {
			return fmt.Errorf("pressure: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pressure set to %s\n", args[0])
		return nil
	},
}

// --- evictions command ---

var (
	evictionsReason string
	evictionsLimit  int
)

var evictionsCmd = &cobra.Command{
	Use:   "evictions",
	Short: "Show the eviction log",
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := newClient().Evictions(eviction.Reason(evictionsReason), evictionsLimit)
		if err != nil {
			return fmt.Errorf("evictions: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, "No evictions logged.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tTRACE\tTIER\tREASON\tSTRENGTH")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\n", r.At.Local().Format(time.DateTime), r.TraceID, r.Tier, r.Reason, r.Strength)
		}
		return tw.Flush()
	},
}

func init() {
	storeCmd.Flags().StringSliceVarP(&storeTags, "tag", "t", nil, "tag the trace (repeatable)")
	storeCmd.Flags().Float64Var(&storeValence, "valence", 0, "emotional valence in [-1,1]")
	storeCmd.Flags().StringSliceVar(&storeRelated, "related", nil, "ids of related traces to link")
	storeCmd.Flags().BoolVar(&storeJSON, "json", false, "parse content as JSON")

	retrieveCmd.Flags().StringSliceVarP(&retrieveTags, "tag", "t", nil, "required tag or glob (repeatable)")
	retrieveCmd.Flags().IntVarP(&retrieveLimit, "limit", "n", 10, "maximum number of results")
	retrieveCmd.Flags().Float64Var(&retrieveMinStrength, "min-strength", 0, "minimum trace strength")
	retrieveCmd.Flags().IntVar(&retrieveDepth, "depth", 0, "association hops to report")
	retrieveCmd.Flags().DurationVar(&retrieveWithin, "within", 0, "only traces accessed within this duration")

	pathCmd.Flags().IntVar(&pathMaxHops, "max-hops", 3, "maximum path length")

	evictionsCmd.Flags().StringVar(&evictionsReason, "reason", "", "filter by reason")
	evictionsCmd.Flags().IntVarP(&evictionsLimit, "limit", "n", 20, "maximum number of entries")
}
