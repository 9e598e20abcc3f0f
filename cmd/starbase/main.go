package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"starbase-go/internal/app"
	"starbase-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a StarbaseApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Commit", "Push").
func newApp(ctx context.Context, operation string, args []string) (*app.StarbaseApp, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("resolving default paths: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewStarbaseApp(ctx, cfg, operation, strings.Join(args, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// closeApp closes a and reports background failures on stderr.
func closeApp(a *app.StarbaseApp) {
	a.Wait()
	for _, f := range a.Failures() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", f)
	}
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

var rootCmd = &cobra.Command{
	Use:          "starbase",
	Short:        "BPMN/DMN project store with Git sync",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to resolve default paths: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, paths.BaseDir)

		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.InitDatabase(cfg); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		fmt.Printf("Log Dir:  %s\n", paths.LogDir())
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to resolve default paths: %w", err)
		}

		cfg, err := config.ReadFromFile(paths.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Lock:        %s\n", cfg.Lock.Type)
		for _, p := range cfg.Providers {
			fmt.Printf("Provider:    %s (%s)\n", p.ID, p.Type)
		}
		for _, ar := range cfg.Archives {
			fmt.Printf("Archive:     %s (%s)\n", ar.Name, ar.Type)
		}
		fmt.Printf("Auto-commit: %v\n", cfg.Sync.AutoCommit)
		return nil
	},
}

// project command
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "CreateProject", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		p, err := a.CreateProject(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created project %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "ListProjects", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		projects, err := a.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s  %s  %s\n", p.ID, p.CreatedAt.Format("2006-01-02 15:04:05"), p.Name)
		}
		return nil
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage project files",
}

var fileSaveCmd = &cobra.Command{
	Use:   "save PROJECT LOCAL_FILE",
	Short: "Save a local BPMN/DMN file into a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectPath, _ := cmd.Flags().GetString("path")
		draft, _ := cmd.Flags().GetBool("draft")

		ctx := cmd.Context()
		a, err := newApp(ctx, "SaveFile", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		f, err := a.SaveFile(ctx, args[0], projectPath, args[1], draft)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %s.%s (%s)\n", f.Name, f.Type, f.ContentHash[:12])
		return nil
	},
}

var fileListCmd = &cobra.Command{
	Use:   "list PROJECT",
	Short: "List project files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "ListFiles", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		files, err := a.ListFiles(ctx, args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %s  %s\n", f.ContentHash[:12], f.UpdatedAt.Format("2006-01-02 15:04:05"), f.Path)
		}
		return nil
	},
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete PROJECT PATH",
	Short: "Delete a project file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "DeleteFile", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.DeleteFile(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[1])
		return nil
	},
}

var fileHistoryCmd = &cobra.Command{
	Use:   "history PROJECT PATH",
	Short: "View the version history of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "GetFileHistory", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		h, err := a.GetFileHistory(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if h.LastCommit != nil {
			fmt.Printf("Last changed in v%d %s  %s\n", h.LastCommit.VersionNumber, h.LastCommit.ID, h.LastCommit.Message)
		}
		if len(h.Versions) == 0 {
			fmt.Println("No versions recorded.")
			return nil
		}
		for _, v := range h.Versions {
			fmt.Printf("v%-4d  %s  %s\n", v.VersionNumber, v.CreatedAt.Format("2006-01-02 15:04:05"), v.CommitID)
		}
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import PROJECT DIR",
	Short: "Import every BPMN/DMN file below a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "Import", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		result, err := a.Import(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Printf("Imported %d file(s), skipped %d\n", result.Imported, result.Skipped)
		if result.Commit != nil {
			fmt.Printf("Committed v%d %s\n", result.Commit.VersionNumber, result.Commit.ID)
		}
		return nil
	},
}

// commit command
var commitCmd = &cobra.Command{
	Use:   "commit PROJECT",
	Short: "Commit the current state of a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		draft, _ := cmd.Flags().GetBool("draft")

		ctx := cmd.Context()
		a, err := newApp(ctx, "Commit", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		info, err := a.Commit(ctx, args[0], message, draft)
		if err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		c := info.Changes
		fmt.Printf("Committed v%d %s (%d added, %d modified, %d deleted, %d unchanged)\n",
			info.VersionNumber, info.ID, c.Added, c.Modified, c.Deleted, c.Unchanged)
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log PROJECT",
	Short: "View commit history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		draft, _ := cmd.Flags().GetBool("draft")

		ctx := cmd.Context()
		a, err := newApp(ctx, "Log", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		commits, err := a.Log(ctx, args[0], limit, draft)
		if err != nil {
			return err
		}
		if len(commits) == 0 {
			fmt.Println("No commits.")
			return nil
		}
		for _, c := range commits {
			remote := ""
			if c.IsRemote {
				remote = "  [remote]"
			}
			fmt.Printf("v%-4d  %s  %s  %-10s  %s%s\n",
				c.VersionNumber, c.ID, c.CreatedAt.Format("2006-01-02 15:04:05"), c.Source, c.Message, remote)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show COMMIT",
	Short: "Show a commit and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "Show", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		info, snaps, err := a.Show(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("commit %s (v%d)\n", info.ID, info.VersionNumber)
		fmt.Printf("hash   %s\n", info.Hash)
		fmt.Printf("date   %s\n", info.CreatedAt.Format(time.RFC3339))
		fmt.Printf("\n    %s\n\n", info.Message)
		for _, s := range snaps {
			fmt.Printf("%-9s  %s.%s\n", s.ChangeType, s.Name, s.Type)
		}
		return nil
	},
}

// diff command
var diffCmd = &cobra.Command{
	Use:   "diff [FROM] TO",
	Short: "Diff two commits (or a commit against its parent)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := "", args[0]
		if len(args) == 2 {
			from, to = args[0], args[1]
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, "Diff", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		diffs, err := a.Diff(ctx, from, to)
		if err != nil {
			return err
		}
		if len(diffs) == 0 {
			fmt.Println("No differences.")
			return nil
		}
		for _, d := range diffs {
			fmt.Printf("%s %s\n", d.ChangeType, d.Path)
			fmt.Print(d.Unified)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		a, err := newApp(ctx, "GetHistory", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		ops, err := a.GetHistory(ctx, limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if !op.FinishedAt.IsZero() {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// project subcommands
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)

	// file subcommands
	fileCmd.AddCommand(fileSaveCmd)
	fileSaveCmd.Flags().StringP("path", "p", "", "Path inside the project (default: the local file name)")
	fileSaveCmd.Flags().Bool("draft", false, "Save onto your draft branch")
	fileCmd.AddCommand(fileListCmd)
	fileCmd.AddCommand(fileDeleteCmd)
	fileCmd.AddCommand(fileHistoryCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringP("message", "m", "", "Commit message")
	commitCmd.Flags().Bool("draft", false, "Commit your draft branch")
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntP("limit", "n", 50, "Maximum number of commits to show")
	logCmd.Flags().Bool("draft", false, "Show your draft branch")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
