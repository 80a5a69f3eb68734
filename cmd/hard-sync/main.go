package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"hard-sync/internal/app"
	"hard-sync/internal/config"
	"hard-sync/internal/hs"
	"hard-sync/internal/tracker"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an HSApp. The caller must defer app.Close().
func newApp() (*app.HSApp, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewHSApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "hard-sync",
	Short:        "One-way directory synchronization",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.LogDir = defaults["log_dir"]

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Log Level:   %s\n", cfg.LogLevel)
		fmt.Printf("Journal TTL: %s\n", cfg.JournalTTL())
		fmt.Printf("Buffer:      %d bytes\n", cfg.Sync.CopyBufferSize)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		if len(cfg.Filesystem.Ignore) > 0 {
			fmt.Printf("Ignore:      %s\n", strings.Join(cfg.Filesystem.Ignore, ", "))
		}
		return nil
	},
}

// init command
var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Adopt a directory for syncing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		count, err := a.Init(dir)
		if err != nil {
			return fmt.Errorf("initializing %s: %w", dir, err)
		}

		fmt.Printf("Initialized %s (%d file(s) tracked)\n", dir, count)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync BASE TARGET",
	Short: "Copy new and newer files from BASE into TARGET",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var flags app.SyncFlags
		flags.Init, _ = cmd.Flags().GetBool("init")
		flags.Reverse, _ = cmd.Flags().GetBool("reverse")
		flags.DryRun, _ = cmd.Flags().GetBool("dry-run")
		flags.Exclude, _ = cmd.Flags().GetStringArray("exclude")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Sync(args[0], args[1], flags)
		if report != nil && report.Result != nil {
			printSyncReport(report)
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return nil
	},
}

func printSyncReport(report *app.SyncReport) {
	for _, root := range report.WouldInitialize {
		fmt.Printf("Would initialize %s\n", root)
	}

	r := report.Result
	if r.DryRun {
		fmt.Printf("Dry run: %d file(s) (%s) would be copied from %s to %s\n",
			r.Planned, humanize.Bytes(uint64(r.PlannedBytes)), report.Base, report.Target)
		for _, g := range r.Groups {
			for _, f := range g.Files {
				fmt.Printf("  %s -> %s\n", f, g.Dest)
			}
		}
	} else {
		fmt.Printf("Copied %d file(s) from %s to %s\n", r.Copied, report.Base, report.Target)
	}
	if r.Ignored > 0 {
		fmt.Printf("Ignored %d file(s)\n", r.Ignored)
	}
	if r.Conflicts > 0 {
		fmt.Printf("Skipped %d file(s) whose target path is a directory\n", r.Conflicts)
	}
	for _, e := range r.Errors {
		fmt.Printf("Failed: %s\n", e)
	}
	fmt.Printf("Run ID: %s\n", report.RunID)
}

// diff command
var diffCmd = &cobra.Command{
	Use:   "diff BASE TARGET",
	Short: "List files whose content differs between BASE and TARGET",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Diff(args[0], args[1], recursive)
		if err != nil {
			return err
		}

		if len(report.Entries) == 0 {
			fmt.Println("No differences.")
			return nil
		}

		for _, e := range report.Entries {
			indicator := "M"
			if e.Kind == tracker.DiffNew {
				indicator = "A"
			}
			fmt.Printf("%s %s\n", indicator, e.RelativePath)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "View sync run history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var runs []*hs.SyncRun
		if len(args) > 0 {
			run, err := a.Run(args[0])
			if err != nil {
				return err
			}
			runs = append(runs, run)
		} else {
			runs, err = a.History(limit)
			if err != nil {
				return err
			}
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt.Valid {
				d := run.FinishedAt.Time.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			dry := ""
			if run.DryRun {
				dry = " (dry run)"
			}
			fmt.Printf("#%d  %s  %s  %-8s  %d copied  %d failed  %d ignored  %s  %s -> %s%s\n",
				run.ID,
				run.RunID,
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.Status,
				run.Copied,
				run.Failed,
				run.Ignored,
				duration,
				run.Base,
				run.Target,
				dry,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolP("init", "i", false, "Adopt uninitialized roots before syncing")
	syncCmd.Flags().BoolP("reverse", "r", false, "Copy from TARGET into BASE")
	syncCmd.Flags().BoolP("dry-run", "n", false, "Show what would be copied without copying")
	syncCmd.Flags().StringArrayP("exclude", "e", nil, "Ignore paths matching this regular expression (repeatable)")
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
