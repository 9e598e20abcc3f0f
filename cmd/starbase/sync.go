package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"starbase-go/internal/app"
	"starbase-go/internal/vcs"
)

// stdin is shared so consecutive piped secrets are not lost to buffering.
var stdin = bufio.NewReader(os.Stdin)

// readSecret reads a secret from the env variable, if set, or else from the terminal without echo.
func readSecret(prompt, env string) (string, error) {
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	return string(b), nil
}

// resolveToken returns the --token flag, or the stored token of the project's provider.
// No prompt is shown when the credential store does not exist yet.
func resolveToken(ctx context.Context, cmd *cobra.Command, a *app.StarbaseApp, project string) (string, error) {
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		return token, nil
	}
	if !a.CredentialsConfigured() {
		return "", nil
	}
	passphrase, err := readSecret("Passphrase", "STARBASE_PASSPHRASE")
	if err != nil {
		return "", err
	}
	return a.ProviderToken(ctx, project, passphrase)
}

// remote command
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Manage the remote repository of a project",
}

var remoteLinkCmd = &cobra.Command{
	Use:   "link PROJECT",
	Short: "Link a project to a remote repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts vcs.LinkOptions
		opts.ProviderID, _ = cmd.Flags().GetString("provider")
		opts.RemoteURL, _ = cmd.Flags().GetString("url")
		opts.Namespace, _ = cmd.Flags().GetString("namespace")
		opts.RepositoryName, _ = cmd.Flags().GetString("name")
		opts.DefaultBranch, _ = cmd.Flags().GetString("branch")

		ctx := cmd.Context()
		a, err := newApp(ctx, "LinkRemote", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		repo, err := a.LinkRemote(ctx, args[0], opts)
		if err != nil {
			return err
		}
		fmt.Printf("Linked to %s via %s (branch %s)\n", remoteName(repo.RemoteURL, repo.Namespace, repo.RepositoryName), repo.ProviderID, repo.DefaultBranch)
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show PROJECT",
	Short: "Show the remote repository and sync state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "GetRemote", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		repo, err := a.GetRemote(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Remote:    %s\n", remoteName(repo.RemoteURL, repo.Namespace, repo.RepositoryName))
		fmt.Printf("Provider:  %s\n", repo.ProviderID)
		fmt.Printf("Branch:    %s\n", repo.DefaultBranch)
		if repo.LastSyncAt.IsZero() {
			fmt.Println("Last sync: never")
			return nil
		}
		fmt.Printf("Last sync: %s at %s\n", repo.LastSyncAt.Format("2006-01-02 15:04:05"), repo.LastCommitSHA)
		if m, err := vcs.ParseManifest(repo.LastPushedManifest); err == nil && m != nil {
			fmt.Printf("Manifest:  %d file(s)\n", len(m))
		}
		return nil
	},
}

func remoteName(url, namespace, name string) string {
	if url != "" {
		return url
	}
	if namespace != "" {
		return namespace + "/" + name
	}
	return name
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push PROJECT",
	Short: "Push changed files to the linked remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts vcs.PushOptions
		opts.Branch, _ = cmd.Flags().GetString("branch")
		opts.Message, _ = cmd.Flags().GetString("message")

		ctx := cmd.Context()
		a, err := newApp(ctx, "Push", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		token, err := resolveToken(ctx, cmd, a, args[0])
		if err != nil {
			return err
		}
		result, err := a.Push(ctx, args[0], token, opts)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		if result.Commit == nil {
			fmt.Printf("Nothing to push (%d file(s) unchanged)\n", result.SkippedFilesCount)
			return nil
		}
		fmt.Printf("Pushed %d file(s), deleted %d, skipped %d -> %s\n",
			result.PushedFilesCount, result.DeletionsCount, result.SkippedFilesCount, result.Commit.SHA)
		if result.UsedRemoteTree {
			fmt.Println("Compared against the remote tree")
		}
		return nil
	},
}

// pull command
var pullCmd = &cobra.Command{
	Use:   "pull PROJECT",
	Short: "Pull files from the linked remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts vcs.PullOptions
		opts.Branch, _ = cmd.Flags().GetString("branch")
		opts.Patterns, _ = cmd.Flags().GetStringSlice("pattern")

		ctx := cmd.Context()
		a, err := newApp(ctx, "Pull", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		token, err := resolveToken(ctx, cmd, a, args[0])
		if err != nil {
			return err
		}
		result, err := a.Pull(ctx, args[0], token, opts)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		fmt.Printf("Pulled %d file(s), skipped %d\n", result.FilesCount, result.SkippedCount)
		if result.CommitID != "" {
			fmt.Printf("Committed %s\n", result.CommitID)
		}
		return nil
	},
}

// draft command
var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Work on your personal draft branch",
}

var draftStartCmd = &cobra.Command{
	Use:   "start PROJECT",
	Short: "Create your draft branch from main",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "StartDraft", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		b, err := a.StartDraft(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("On branch %s\n", b.Name)
		return nil
	},
}

var draftMergeCmd = &cobra.Command{
	Use:   "merge PROJECT",
	Short: "Merge your draft branch into main",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")

		ctx := cmd.Context()
		a, err := newApp(ctx, "MergeDraft", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		info, err := a.MergeDraft(ctx, args[0], message)
		if err != nil {
			return fmt.Errorf("merge failed: %w", err)
		}
		fmt.Printf("Merged as v%d %s\n", info.VersionNumber, info.ID)
		return nil
	},
}

// token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage encrypted provider access tokens",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set PROVIDER",
	Short: "Store an access token for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "SetToken", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		token, err := readSecret("Token", "")
		if err != nil {
			return err
		}
		passphrase, err := readSecret("Passphrase", "STARBASE_PASSPHRASE")
		if err != nil {
			return err
		}
		if err := a.SetToken(args[0], token, passphrase); err != nil {
			return err
		}
		fmt.Printf("Token stored for %s\n", args[0])
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with a stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "ListTokens", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if !a.CredentialsConfigured() {
			fmt.Println("No tokens stored.")
			return nil
		}
		passphrase, err := readSecret("Passphrase", "STARBASE_PASSPHRASE")
		if err != nil {
			return err
		}
		ids, err := a.ListTokens(passphrase)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No tokens stored.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete PROVIDER",
	Short: "Delete the stored token of a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "DeleteToken", args)
		if err != nil {
			return err
		}
		defer closeApp(a)

		passphrase, err := readSecret("Passphrase", "STARBASE_PASSPHRASE")
		if err != nil {
			return err
		}
		if err := a.DeleteToken(args[0], passphrase); err != nil {
			return err
		}
		fmt.Printf("Token deleted for %s\n", args[0])
		return nil
	},
}

func init() {
	remoteCmd.AddCommand(remoteLinkCmd)
	remoteLinkCmd.Flags().String("provider", "", "Provider id from the config (default: first provider)")
	remoteLinkCmd.Flags().String("url", "", "Remote repository URL")
	remoteLinkCmd.Flags().String("namespace", "", "Repository namespace or owner")
	remoteLinkCmd.Flags().String("name", "", "Repository name")
	remoteLinkCmd.Flags().String("branch", "", "Default branch (default: main)")
	remoteCmd.AddCommand(remoteShowCmd)

	pushCmd.Flags().StringP("message", "m", "", "Remote commit message")
	pushCmd.Flags().String("branch", "", "Remote branch (default: the linked default branch)")
	pushCmd.Flags().String("token", "", "Access token (default: the stored token)")

	pullCmd.Flags().String("branch", "", "Remote branch (default: the linked default branch)")
	pullCmd.Flags().StringSlice("pattern", nil, "Glob of remote paths to pull (repeatable)")
	pullCmd.Flags().String("token", "", "Access token (default: the stored token)")

	draftCmd.AddCommand(draftStartCmd)
	draftCmd.AddCommand(draftMergeCmd)
	draftMergeCmd.Flags().StringP("message", "m", "", "Merge message")

	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)

	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(tokenCmd)
}
