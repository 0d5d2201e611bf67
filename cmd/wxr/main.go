package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"wxr-go/internal/app"
	"wxr-go/internal/config"
	"wxr-go/internal/importer"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Import", "ListRuns").
func newApp(operation string, dryRun bool) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation, dryRun)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "wxr",
	Short: "Content export importer",
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

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s", cfg.Database.Type)
		if cfg.Database.DataDir != "" {
			fmt.Printf(" (%s)", cfg.Database.DataDir)
		}
		fmt.Println()
		fmt.Printf("Media:     %s\n", cfg.Media.Type)
		return nil
	},
}

// inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Summarize an export document without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Inspect", false)
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		s, err := a.Inspect(path)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", path, err)
		}

		fmt.Printf("Site:       %s (%s)\n", s.Site.Title, s.Site.Link)
		fmt.Printf("Format:     %s\n", s.Site.Version)
		fmt.Printf("Posts:      %d\n", s.Posts)
		fmt.Printf("Pages:      %d\n", s.Pages)
		fmt.Printf("Media:      %d\n", s.Media)
		fmt.Printf("Menu items: %d\n", s.MenuItems)
		if s.Others > 0 {
			fmt.Printf("Other:      %d\n", s.Others)
		}
		fmt.Printf("Comments:   %d\n", s.Comments)
		fmt.Printf("Terms:      %d\n", s.Terms)
		fmt.Printf("Users:      %d\n", s.Users)
		for _, w := range s.Warnings {
			fmt.Printf("Warning: %s\n", w)
		}
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import an export document into the content store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("Import", dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := app.OptionsFromConfig(a.Config().Import)
		applyImportFlags(cmd, &opts)

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		stats, err := a.Import(cmd.Context(), path, opts)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		if dryRun {
			fmt.Println("Dry run; nothing was persisted.")
		}
		printStats(stats)
		return nil
	},
}

// applyImportFlags overrides config-derived options with any flags the user
// set explicitly.
func applyImportFlags(cmd *cobra.Command, opts *importer.Options) {
	if cmd.Flags().Changed("fetch-attachments") {
		opts.FetchAttachments, _ = cmd.Flags().GetBool("fetch-attachments")
	}
	if cmd.Flags().Changed("aggressive-url-search") {
		opts.AggressiveURLSearch, _ = cmd.Flags().GetBool("aggressive-url-search")
	}
	if cmd.Flags().Changed("update-attachment-guids") {
		opts.UpdateAttachmentGUIDs, _ = cmd.Flags().GetBool("update-attachment-guids")
	}
	if cmd.Flags().Changed("default-author") {
		opts.DefaultAuthor, _ = cmd.Flags().GetString("default-author")
	}
	if noPrefill, _ := cmd.Flags().GetBool("no-prefill"); noPrefill {
		opts.PrefillPosts = false
		opts.PrefillComments = false
		opts.PrefillTerms = false
	}
}

func printStats(s *importer.Stats) {
	fmt.Printf("Posts:    %d\n", s.Posts)
	fmt.Printf("Comments: %d\n", s.Comments)
	fmt.Printf("Terms:    %d\n", s.Terms)
	fmt.Printf("Users:    %d\n", s.Users)
	fmt.Printf("Skipped:  %d duplicate, %d malformed, %d unsupported\n",
		s.SkippedDuplicates, s.SkippedMalformed, s.SkippedUnsupported)
	if s.StoreFailures > 0 || s.FetchFailures > 0 {
		fmt.Printf("Failures: %d store, %d fetch\n", s.StoreFailures, s.FetchFailures)
	}
	fmt.Printf("Remapped: %d deferred references", s.Remapped)
	if s.Gaps > 0 {
		fmt.Printf(" (%d unresolved)", s.Gaps)
	}
	fmt.Println()
	if s.RewrittenPosts > 0 {
		fmt.Printf("Rewrote:  %d post bodies\n", s.RewrittenPosts)
	}
}

// runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "View import run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ListRuns", false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.Runs(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No import runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				d := r.FinishedAt.Sub(r.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-10s  %s  %s\n",
				r.ID,
				r.Operation,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				r.Parameters,
			)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	importCmd.Flags().Bool("fetch-attachments", false, "Download attachment files into the media store")
	importCmd.Flags().Bool("aggressive-url-search", false, "Rewrite remapped URLs in every stored post, not just flagged ones")
	importCmd.Flags().Bool("update-attachment-guids", false, "Replace attachment guids with their stored URLs")
	importCmd.Flags().String("default-author", "", "Login to assign when a post's author cannot be resolved")
	importCmd.Flags().Bool("no-prefill", false, "Look up existing entities on demand instead of bulk-loading them")
	importCmd.Flags().Bool("dry-run", false, "Import into a throwaway in-memory store")

	runsCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(runsCmd)
}
