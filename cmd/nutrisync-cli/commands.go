package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"nutrisync/internal/app"
	"nutrisync/internal/domain"
	"nutrisync/internal/job"
	"nutrisync/internal/nutrition"
	"nutrisync/pkg/nutrisync"
)

var (
	appendStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	updateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	headerStyle = lipgloss.NewStyle().Bold(true)
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd, false)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the sheet changes a sync would make (dry-run)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd, true)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and summarize nutrition history without touching the sheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateSource(); err != nil {
			return err
		}
		fetcher, err := app.NewFetcher(cfg, slog.Default())
		if err != nil {
			return err
		}

		records, err := fetcher.FetchCheckinHistory(cmd.Context())
		if err != nil {
			return err
		}
		summaries := nutrition.Summarize(records, slog.Default())
		pp.Println(summaries)
		fmt.Println(mutedStyle.Render(fmt.Sprintf("%d day(s) via %s", len(summaries), fetcher.Name())))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runs, err := app.OpenRuns(cfg)
		if err != nil {
			return err
		}
		defer runs.Close()

		records, err := runs.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println(mutedStyle.Render("no runs recorded"))
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%-5s %-20s %-7s %7s %8s %7s", "ID", "STARTED", "SOURCE", "FETCHED", "APPENDED", "UPDATED")))
		for _, r := range records {
			line := fmt.Sprintf("%-5d %-20s %-7s %7d %8d %7d",
				r.ID, r.StartedAt.Local().Format(time.DateTime), r.Strategy, r.Fetched, r.Appended, r.Updated)
			switch {
			case r.Error != "":
				fmt.Println(errorStyle.Render(line + "  " + r.Error))
			case r.DryRun:
				fmt.Println(mutedStyle.Render(line + "  (dry run)"))
			default:
				fmt.Println(line)
			}
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon's status API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		server, _ := cmd.Flags().GetString("server")
		trigger, _ := cmd.Flags().GetBool("trigger")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		c := nutrisync.NewClient(server)
		if err := c.Health(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(appendStyle.Render("healthy: " + server))

		if trigger {
			res, err := c.TriggerRun(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			for _, s := range res.Appends {
				fmt.Println(appendStyle.Render(fmt.Sprintf("+ %s | %6.0f kcal", s.Date, s.Kcal)))
			}
			for _, u := range res.Updates {
				fmt.Println(updateStyle.Render(fmt.Sprintf("~ %s | %6.0f kcal  (row %d)", u.Date, u.Kcal, u.Row)))
			}
			fmt.Printf("run %d: %d appended, %d updated\n", res.Run.ID, res.Run.Appended, res.Run.Updated)
			return nil
		}

		runs, err := c.ListRuns(cmd.Context(), 1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println(mutedStyle.Render("no runs recorded"))
			return nil
		}
		last := runs[0]
		line := fmt.Sprintf("last run %d at %s: %d fetched, %d appended, %d updated",
			last.ID, last.StartedAt.Local().Format(time.DateTime), last.Fetched, last.Appended, last.Updated)
		if last.Error != "" {
			fmt.Println(errorStyle.Render(line + ": " + last.Error))
		} else {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to show")

	statusCmd.Flags().String("server", "http://localhost:8080", "status API base URL")
	statusCmd.Flags().Bool("trigger", false, "trigger a sync on the server")
	statusCmd.Flags().Bool("dry-run", false, "with --trigger, only plan the sync")
}

func runSync(cmd *cobra.Command, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Job.Run(cmd.Context(), job.RunOptions{DryRun: dryRun})
	if err != nil {
		return err
	}

	printPlan(res.Plan)
	appends, updates := res.Plan.Counts()
	switch {
	case res.Plan.Empty():
		fmt.Printf("\nPlan: all %d day(s) are in sync\n", len(res.Summaries))
	case dryRun:
		fmt.Printf("\nPlan: %d row(s) will be appended, %d updated\n", appends, updates)
	default:
		fmt.Printf("\nApplied: %d row(s) appended, %d updated\n", appends, updates)
	}
	return nil
}

func printPlan(p domain.Plan) {
	for _, op := range p.Appends {
		fmt.Println(appendStyle.Render("+ " + formatSummary(op.Summary)))
	}
	for _, op := range p.Updates {
		fmt.Println(updateStyle.Render(fmt.Sprintf("~ %s  (row %d)", formatSummary(op.Summary), op.Row)))
	}
}

func formatSummary(s domain.Summary) string {
	return fmt.Sprintf("%s | %6.0f kcal | %5.0f carbs | %5.0f fat | %5.0f protein",
		s.Date, s.Kcal, s.Carbs, s.Fat, s.Protein)
}
