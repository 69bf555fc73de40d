// Command kingdomctl inspects a saved diplomacy world and moves it in and
// out of compressed snapshot files.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/engine"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/persistence"
	"github.com/talgya/kingdoms/internal/social"
)

var (
	dbPath     string
	tuningPath string
	outputJSON bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "kingdomctl",
	Short: "Inspect and move kingdom diplomacy saves",
	Long:  `A command-line interface for reading a diplomacy world's SQLite save and exchanging it as zstd snapshot files.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the saved world",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSnapshot()
		if err != nil {
			return err
		}
		players := 0
		for _, k := range s.Kingdoms {
			if k.Owner != "" {
				players++
			}
		}
		letters := 0
		for _, box := range s.Mail {
			letters += len(box)
		}
		summary := map[string]any{
			"tick":       s.Tick,
			"sim_time":   engine.SimTime(s.Tick),
			"kingdoms":   len(s.Kingdoms),
			"players":    players,
			"wars":       len(s.Wars),
			"alliances":  len(s.Alliances),
			"letters":    letters,
			"in_transit": len(s.Responses),
		}
		if outputJSON {
			return printJSON(summary)
		}
		fmt.Printf("Tick %s (%s)\n", humanize.Comma(int64(s.Tick)), engine.SimTime(s.Tick))
		fmt.Printf("%d kingdoms, %d ruled by players\n", len(s.Kingdoms), players)
		fmt.Printf("%d wars, %d alliances\n", len(s.Wars), len(s.Alliances))
		fmt.Printf("%d letters in inboxes, %d awaiting reply\n", letters, len(s.Responses))
		return nil
	},
}

var kingdomsCmd = &cobra.Command{
	Use:   "kingdoms",
	Short: "List kingdoms ranked by wealth",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSnapshot()
		if err != nil {
			return err
		}
		type row struct {
			Rank     int              `json:"rank"`
			ID       social.FactionID `json:"id"`
			Name     string           `json:"name"`
			Owner    social.PlayerID  `json:"owner,omitempty"`
			Wealth   float64          `json:"wealth"`
			Soldiers int              `json:"soldiers"`
		}
		var rows []row
		for _, k := range s.Kingdoms {
			st := s.Stockpiles[k.ID]
			rows = append(rows, row{
				ID: k.ID, Name: k.DisplayName(), Owner: k.Owner,
				Wealth: st.TotalGold(), Soldiers: s.Armies[k.ID].Alive,
			})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Wealth != rows[j].Wealth {
				return rows[i].Wealth > rows[j].Wealth
			}
			return rows[i].ID < rows[j].ID
		})
		for i := range rows {
			rows[i].Rank = i + 1
		}
		if outputJSON {
			return printJSON(rows)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tID\tNAME\tOWNER\tWEALTH\tSOLDIERS")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", humanize.Ordinal(r.Rank), r.ID, r.Name, r.Owner,
				humanize.Comma(int64(r.Wealth)), r.Soldiers)
		}
		return tw.Flush()
	},
}

var relationsCmd = &cobra.Command{
	Use:   "relations [kingdom]",
	Short: "Show relation scores, optionally for one kingdom",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSnapshot()
		if err != nil {
			return err
		}
		var filter social.FactionID
		if len(args) == 1 {
			filter = social.FactionID(args[0])
		}

		type row struct {
			From     string `json:"from"`
			To       string `json:"to"`
			Score    int    `json:"score"`
			Baseline int    `json:"baseline"`
		}
		var rows []row
		for _, e := range s.FactionRelations {
			if filter == "" || e.Owner == filter || e.Counterpart == filter {
				rows = append(rows, row{string(e.Owner), string(e.Counterpart), e.Score, e.Baseline})
			}
		}
		for _, e := range s.PlayerRelations {
			if filter == "" || e.Owner == filter {
				rows = append(rows, row{string(e.Owner), "player:" + string(e.Counterpart), e.Score, e.Baseline})
			}
		}
		if outputJSON {
			return printJSON(rows)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FROM\tTO\tSCORE\tBASELINE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%+d\t%+d\n", r.From, r.To, r.Score, r.Baseline)
		}
		return tw.Flush()
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox <player>",
	Short: "Show a player's letters, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSnapshot()
		if err != nil {
			return err
		}
		box := s.Mail[social.PlayerID(args[0])]
		if outputJSON {
			return printJSON(box)
		}
		if len(box) == 0 {
			fmt.Println("No letters.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFROM\tKIND\tSTATUS\tSENT\tSUBJECT")
		for _, l := range box {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.FromName, l.Kind, l.Status,
				engine.SimTime(l.CreatedAt), l.Subject)
		}
		return tw.Flush()
	},
}

var alliancesCmd = &cobra.Command{
	Use:   "alliances",
	Short: "List alliances and wars",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSnapshot()
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(map[string]any{"alliances": s.Alliances, "wars": s.Wars})
		}
		names := make(map[social.FactionID]string, len(s.Kingdoms))
		for _, k := range s.Kingdoms {
			names[k.ID] = k.Name
		}
		fmt.Println("Alliances:")
		for _, p := range s.Alliances {
			fmt.Printf("  %s & %s\n", names[p[0]], names[p[1]])
		}
		fmt.Println("Wars:")
		for _, p := range s.Wars {
			fmt.Printf("  %s vs %s\n", names[p[0]], names[p[1]])
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the most recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		db, err := persistence.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		events, err := db.RecentEvents(limit)
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}
		if outputJSON {
			return printJSON(events)
		}
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			fmt.Printf("[%s] %-8s %s\n", engine.SimTime(e.Tick), e.Category, e.Description)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the saved world to a zstd snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSnapshot()
		if err != nil {
			return err
		}
		if err := persistence.WriteSnapshot(args[0], s); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		fmt.Printf("Exported tick %s to %s\n", humanize.Comma(int64(s.Tick)), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the saved world with a zstd snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, fileRep, err := persistence.ReadSnapshot(args[0])
		if err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}
		tuning := config.DefaultTuning()
		if tuningPath != "" {
			if tuning, err = config.LoadTuning(tuningPath); err != nil {
				return err
			}
		}
		// Restoring runs the same sanitization as a daemon start, so the
		// database only ever holds a consistent world.
		w, h, rep, err := persistence.Restore(s, tuning, entropy.NewSeeded(1))
		if err != nil {
			return err
		}
		for section, n := range fileRep {
			rep[section] += n
		}
		db, err := persistence.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveWorld(persistence.Capture(w, h)); err != nil {
			return fmt.Errorf("failed to save world: %w", err)
		}
		fmt.Printf("Imported tick %s with %d kingdoms", humanize.Comma(int64(s.Tick)), len(h.Roster.All()))
		if n := rep.Total(); n > 0 {
			fmt.Printf(" (dropped %d entries: %s)", n, rep)
		}
		fmt.Println()
		return nil
	},
}

func loadSnapshot() (persistence.Snapshot, error) {
	db, err := persistence.Open(dbPath)
	if err != nil {
		return persistence.Snapshot{}, err
	}
	defer db.Close()
	s, rep, err := db.LoadWorld()
	if err != nil {
		return s, fmt.Errorf("failed to load world from %s: %w", dbPath, err)
	}
	if rep.Total() > 0 {
		slog.Warn("skipped unreadable rows", "dropped", rep.String())
	}
	return s, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	defaultDB := "data/kingdoms.db"
	if rt, err := config.LoadRuntime(); err == nil {
		defaultDB = rt.DBPath
	}
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", defaultDB, "Database file path")
	rootCmd.PersistentFlags().StringVar(&tuningPath, "tuning", "", "Tuning YAML used when importing")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	eventsCmd.Flags().Int("limit", 20, "Number of events to show")

	rootCmd.AddCommand(
		statusCmd,
		kingdomsCmd,
		relationsCmd,
		inboxCmd,
		alliancesCmd,
		eventsCmd,
		exportCmd,
		importCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
