package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boardfill/internal/config"
	"boardfill/internal/devops"
	"boardfill/internal/domain"
	"boardfill/internal/graph"
	"boardfill/internal/ledger"
	"boardfill/internal/llm"
	"boardfill/internal/source"
	"boardfill/internal/sync"
	"boardfill/internal/transfer"
)

var rootCmd = &cobra.Command{
	Use:   "bf",
	Short: "Boardfill CLI",
	Long: `Boardfill collects daily work activities and files them as work items.

Sources: Outlook calendar (CSV, ICS or Graph API), recurring weekday
templates, and commits in Azure Git repositories. Every created item is
fingerprinted in a local ledger so reruns never duplicate tickets; with
monthly grouping enabled each month's tasks hang under one user story.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// Secrets live in .env; absence is fine.
	_ = godotenv.Load()
	viper.SetEnvPrefix("BOARDFILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to config.yaml")
	rootCmd.PersistentFlags().String("ledger", "data/processed.json", "path to the idempotency ledger")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("ledger", rootCmd.PersistentFlags().Lookup("ledger"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(ledgerCmd())
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"))
}

func openLedger() *ledger.Ledger {
	return ledger.New(viper.GetString("ledger"))
}

func devopsClient(cfg *config.Config) (*devops.Client, error) {
	pat := os.Getenv("AZURE_DEVOPS_PAT")
	if pat == "" {
		return nil, fmt.Errorf("AZURE_DEVOPS_PAT not set")
	}
	return devops.New(devops.Options{
		BaseURL:      cfg.DevOps.BaseURL,
		Organization: cfg.DevOps.Organization,
		Project:      cfg.DevOps.DefaultProject,
		PAT:          pat,
	}), nil
}

// calendarBackend wraps graphClient so a missing client stays a nil
// interface, not an interface holding a nil pointer.
func calendarBackend(cfg *config.Config) source.CalendarBackend {
	if gc := graphClient(cfg); gc != nil {
		return gc
	}
	return nil
}

func commitBackend(client *devops.Client) source.CommitBackend {
	if client != nil {
		return client
	}
	return nil
}

// graphClient returns nil when the outlook source does not use the Graph API
// or the credentials are incomplete.
func graphClient(cfg *config.Config) *graph.Client {
	o := cfg.Sources.Outlook
	if o == nil || o.Type != "graph_api" {
		return nil
	}
	tenantID := os.Getenv("GRAPH_TENANT_ID")
	clientID := os.Getenv("GRAPH_CLIENT_ID")
	clientSecret := os.Getenv("GRAPH_CLIENT_SECRET")
	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil
	}
	return graph.New(graph.Options{
		TenantID:     tenantID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

func enhancer(cfg *config.Config) sync.Enhancer {
	if !cfg.DevOps.EnhanceDescs || cfg.LLM == nil {
		return nil
	}
	return llm.New(cfg.LLM.BaseURL, cfg.LLM.Model, os.Getenv("LLM_API_KEY"))
}

// targetDates resolves the --date / --from / --to flags into the list of days
// to collect. No flags means today.
func targetDates(dateStr, fromStr, toStr string) ([]time.Time, error) {
	parse := func(s string) (time.Time, error) {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
		}
		return t, nil
	}
	if dateStr != "" {
		d, err := parse(dateStr)
		if err != nil {
			return nil, err
		}
		return []time.Time{d}, nil
	}
	if fromStr != "" || toStr != "" {
		if fromStr == "" || toStr == "" {
			return nil, fmt.Errorf("--from and --to must be used together")
		}
		from, err := parse(fromStr)
		if err != nil {
			return nil, err
		}
		to, err := parse(toStr)
		if err != nil {
			return nil, err
		}
		if to.Before(from) {
			return nil, fmt.Errorf("--to is before --from")
		}
		var days []time.Time
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
		return days, nil
	}
	now := time.Now()
	return []time.Time{time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)}, nil
}

func filterSources(sources []source.Source, kind string) ([]source.Source, error) {
	if kind != "" && !domain.SourceKind(kind).Valid() {
		return nil, fmt.Errorf("unknown source %q (outlook, recurring, git)", kind)
	}
	var out []source.Source
	for _, s := range sources {
		if !s.Enabled() {
			continue
		}
		if kind != "" && s.Kind() != domain.SourceKind(kind) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// collect gathers activities across sources and days. Collection errors are
// reported per source/day and do not abort the other sources.
func collect(ctx context.Context, sources []source.Source, days []time.Time) []domain.Activity {
	var all []domain.Activity
	for _, day := range days {
		for _, s := range sources {
			activities, err := s.Collect(ctx, day)
			if err != nil {
				fmt.Printf("✗ %s on %s: %v\n", s.Name(), day.Format("2006-01-02"), err)
				continue
			}
			all = append(all, activities...)
		}
	}
	return all
}

func printSummary(s sync.Summary) {
	fmt.Println("\nResumo:")
	fmt.Printf("  Criadas:   %d\n", s.Created)
	fmt.Printf("  Ignoradas: %d\n", s.Skipped)
	if len(s.Failures) > 0 {
		fmt.Printf("  Falhas:    %d\n", len(s.Failures))
		for _, f := range s.Failures {
			fmt.Printf("    ✗ %s: %v\n", f.Title, f.Err)
		}
	}
}

func runCmd() *cobra.Command {
	var dateStr, fromStr, toStr, sourceKind string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect activities and create work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			days, err := targetDates(dateStr, fromStr, toStr)
			if err != nil {
				return err
			}
			client, err := devopsClient(cfg)
			if err != nil {
				return err
			}
			sources, err := filterSources(source.FromConfig(cfg, commitBackend(client), calendarBackend(cfg)), sourceKind)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				fmt.Println("no enabled sources")
				return nil
			}
			if dryRun {
				fmt.Println("dry-run: nothing will be created")
			}

			ctx := cmd.Context()
			activities := collect(ctx, sources, days)
			if len(activities) == 0 {
				fmt.Println("no activities found")
				return nil
			}

			runner := &sync.Runner{
				Ledger:   openLedger(),
				Creator:  client,
				Enhancer: enhancer(cfg),
				DevOps:   cfg.DevOps,
				DryRun:   dryRun,
				Logf: func(format string, args ...any) {
					fmt.Printf("  "+format+"\n", args...)
				},
			}
			var summary sync.Summary
			if cfg.DevOps.MonthlyStories {
				summary, err = runner.RunGrouped(ctx, activities)
			} else {
				summary, err = runner.Run(ctx, activities)
			}
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dateStr, "date", "d", "", "single day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&fromStr, "from", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "range end (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&sourceKind, "source", "s", "", "only this source (outlook, recurring, git)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate without creating anything")
	return cmd
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			type row struct {
				Name    string `json:"name"`
				Enabled bool   `json:"enabled"`
				Details string `json:"details"`
			}
			var rows []row
			if o := cfg.Sources.Outlook; o != nil {
				details := "type: " + o.Type
				switch {
				case o.Type == "csv" && o.CSVPath != "":
					details += " | csv: " + o.CSVPath
				case o.Type == "ics" && o.ICSPath != "":
					details += " | ics: " + o.ICSPath
				case o.Type == "graph_api" && o.UserEmail != "":
					details += " | email: " + o.UserEmail
				}
				rows = append(rows, row{"Outlook", o.Enabled, details})
			}
			if r := cfg.Sources.Recurring; r != nil {
				rows = append(rows, row{"Recorrentes", r.Enabled, fmt.Sprintf("%d template(s)", len(r.Templates))})
			}
			if g := cfg.Sources.Git; g != nil {
				names := make([]string, 0, len(g.Repositories))
				for _, repo := range g.Repositories {
					names = append(names, repo.Name)
				}
				detail := fmt.Sprintf("%d repo(s)", len(names))
				if len(names) > 0 {
					shown := names
					if len(shown) > 3 {
						shown = append(append([]string{}, names[:3]...), fmt.Sprintf("+%d", len(names)-3))
					}
					detail += ": " + strings.Join(shown, ", ")
				}
				rows = append(rows, row{"Azure Git", g.Enabled, detail})
			}
			if viper.GetBool("json") {
				return printJSON(rows)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Source", "Enabled", "Details"})
			for _, r := range rows {
				enabled := "✗"
				if r.Enabled {
					enabled = "✓"
				}
				tw.AppendRow(table.Row{r.Name, enabled, r.Details})
			}
			tw.Render()
			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test connectivity of the backend and every source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			fmt.Println("Azure DevOps")
			client, err := devopsClient(cfg)
			if err != nil {
				fmt.Printf("  ✗ %v\n", err)
			} else if err := client.TestConnection(ctx); err != nil {
				fmt.Printf("  ✗ %v\n", err)
			} else {
				fmt.Printf("  ✓ connected to %s\n", cfg.DevOps.Organization)
			}

			if o := cfg.Sources.Outlook; o != nil && o.Type == "graph_api" {
				fmt.Println("\nMicrosoft Graph")
				gc := graphClient(cfg)
				switch {
				case gc == nil:
					fmt.Println("  ⊘ credentials not configured")
				case gc.TestConnection(ctx):
					fmt.Println("  ✓ token exchange succeeded")
				default:
					fmt.Println("  ✗ token exchange failed")
				}
			}

			fmt.Println("\nSources")
			for _, s := range source.FromConfig(cfg, commitBackend(client), calendarBackend(cfg)) {
				if !s.Enabled() {
					fmt.Printf("  ⊘ %s (disabled)\n", s.Name())
					continue
				}
				if s.TestConnection(ctx) {
					fmt.Printf("  ✓ %s\n", s.Name())
				} else {
					fmt.Printf("  ✗ %s\n", s.Name())
				}
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ledger statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := openLedger().Stats()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"total": stats.Total, "by_source": stats.BySource})
			}
			kinds := make([]string, 0, len(stats.BySource))
			for k := range stats.BySource {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Source", "Processed"})
			for _, k := range kinds {
				tw.AppendRow(table.Row{k, stats.BySource[domain.SourceKind(k)]})
			}
			tw.AppendFooter(table.Row{"Total", stats.Total})
			tw.Render()
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var output, dateStr, fromStr, toStr, sourceKind string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Collect activities into a JSON file without creating anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			days, err := targetDates(dateStr, fromStr, toStr)
			if err != nil {
				return err
			}
			// Export works without a PAT: the git source needs the backend,
			// so it is only wired when the credential is present.
			client, _ := devopsClient(cfg)
			commits := commitBackend(client)
			sources, err := filterSources(source.FromConfig(cfg, commits, calendarBackend(cfg)), sourceKind)
			if err != nil {
				return err
			}
			if commits == nil {
				var withoutGit []source.Source
				for _, s := range sources {
					if s.Kind() != domain.SourceGit {
						withoutGit = append(withoutGit, s)
					}
				}
				sources = withoutGit
			}
			if len(sources) == 0 {
				fmt.Println("no enabled sources")
				return nil
			}

			activities := collect(cmd.Context(), sources, days)
			if len(activities) == 0 {
				fmt.Println("no activities found")
				return nil
			}
			if err := transfer.Export(output, activities, time.Now()); err != nil {
				return err
			}
			fmt.Printf("✓ exported %d activities to %s\n", len(activities), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "data/activities.json", "output file")
	cmd.Flags().StringVarP(&dateStr, "date", "d", "", "single day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&fromStr, "from", "", "range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "range end (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&sourceKind, "source", "s", "", "only this source")
	return cmd
}

func importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create work items from a previously exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			activities, err := transfer.Import(args[0])
			if err != nil {
				return err
			}
			if len(activities) == 0 {
				fmt.Println("no activities in file")
				return nil
			}
			client, err := devopsClient(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("importing %d activities from %s\n", len(activities), args[0])
			if dryRun {
				fmt.Println("dry-run: nothing will be created")
			}
			runner := &sync.Runner{
				Ledger:  openLedger(),
				Creator: client,
				DevOps:  cfg.DevOps,
				DryRun:  dryRun,
				Logf: func(format string, args ...any) {
					fmt.Printf("  "+format+"\n", args...)
				},
			}
			summary, err := runner.Run(cmd.Context(), activities)
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate without creating anything")
	return cmd
}

func deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id...>",
		Short: "Soft-delete work items and scrub them from the ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid work item id %q", arg)
				}
				ids = append(ids, id)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := devopsClient(cfg)
			if err != nil {
				return err
			}

			labels := make([]string, 0, len(ids))
			for _, id := range ids {
				labels = append(labels, fmt.Sprintf("#%d", id))
			}
			fmt.Printf("work items to delete: %s\n", strings.Join(labels, ", "))
			fmt.Println("items move to the recycle bin and can be restored from the UI")
			if !yes && !confirm("proceed?") {
				fmt.Println("cancelled")
				return nil
			}

			led := openLedger()
			for _, id := range ids {
				if err := client.DeleteWorkItem(cmd.Context(), id); err != nil {
					fmt.Printf("  ✗ #%d: %v\n", id, err)
					continue
				}
				removed, err := led.RemoveByTaskID(id)
				if err != nil {
					return err
				}
				note := ""
				if removed {
					note = " (removed from ledger)"
				}
				fmt.Printf("  ✓ #%d deleted%s\n", id, note)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func ledgerCmd() *cobra.Command {
	led := &cobra.Command{Use: "ledger", Short: "Maintain the idempotency ledger"}
	led.AddCommand(ledgerClearCmd())
	led.AddCommand(ledgerRemoveCmd())
	return led
}

func ledgerClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the processed-activity table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm("clear all processed activities?") {
				fmt.Println("cancelled")
				return nil
			}
			count, err := openLedger().Clear()
			if err != nil {
				return err
			}
			fmt.Printf("✓ removed %d entries\n", count)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func ledgerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <fingerprint>",
		Short: "Remove one entry by fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := openLedger().Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Println("no entry with that fingerprint")
				return nil
			}
			fmt.Println("✓ entry removed")
			return nil
		},
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
