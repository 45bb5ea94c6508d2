package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mozilla-conduit/review/internal/cache"
	"github.com/mozilla-conduit/review/internal/config"
	"github.com/mozilla-conduit/review/internal/git"
	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/phabricator"
	"github.com/mozilla-conduit/review/internal/submit"
)

var submitOpts submit.Options

var upstreamRemote string

// submitCmd sends a stack of commits for review, one revision per commit
var submitCmd = &cobra.Command{
	Use:   "submit [start-rev] [end-rev]",
	Short: "Submit a stack of commits for review",
	Long: `Submit sends the selected range of commits to Phabricator, creating one
revision per commit and chaining them parent to child. Without arguments the
range runs from the upstream base to HEAD.

Commits that already carry a Differential Revision line are updated in place:
unchanged commits are skipped, changed commits get a new diff, and reordered
commits have their revision dependencies rewired.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringSliceVarP(&submitOpts.Reviewers, "reviewer", "r", nil, "Reviewer to add to every commit (repeatable)")
	submitCmd.Flags().StringSliceVarP(&submitOpts.Blockers, "blocker", "R", nil, "Blocking reviewer to add to every commit (repeatable)")
	submitCmd.Flags().BoolVar(&submitOpts.Blocking, "blocking", false, "Make all reviewers blocking")
	submitCmd.Flags().BoolVarP(&submitOpts.Yes, "yes", "y", false, "Submit without confirmation")
	submitCmd.Flags().BoolVarP(&submitOpts.Interactive, "interactive", "i", false, "Always ask for confirmation, even when auto-submit is configured")
	submitCmd.Flags().BoolVar(&submitOpts.WIP, "wip", false, "Submit as work in progress (changes planned)")
	submitCmd.Flags().BoolVar(&submitOpts.NoWIP, "no-wip", false, "Request review even for WIP-titled commits")
	submitCmd.Flags().BoolVarP(&submitOpts.Force, "force", "f", false, "Proceed despite a dirty working tree")
	submitCmd.Flags().BoolVarP(&submitOpts.Single, "single", "s", false, "Submit only the end commit")
	submitCmd.Flags().StringVarP(&submitOpts.Bug, "bug", "b", "", "Bug number to set on every revision")
	submitCmd.Flags().StringVarP(&submitOpts.Message, "message", "m", "", "Comment to post on every updated revision")
	submitCmd.Flags().StringVar(&upstreamRemote, "upstream", "", "Remote used to find the stack base")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Phabricator.APIToken == "" {
		return fmt.Errorf("no API token configured; set phabricator.apitoken in %s or the MOZREVIEW_PHABRICATOR_APITOKEN environment variable",
			config.GetConfigFilePath())
	}

	if len(args) > 0 {
		submitOpts.Start = args[0]
	}
	if len(args) > 1 {
		submitOpts.End = args[1]
	}
	if upstreamRemote != "" {
		cfg.Git.Remote = upstreamRemote
	}

	repo, err := git.OpenRepository("")
	if err != nil {
		return err
	}

	client, err := phabricator.NewClient(cfg.Phabricator.URL,
		phabricator.WithToken(cfg.Phabricator.APIToken),
		phabricator.WithTimeout(cfg.Phabricator.TimeoutDuration()),
		phabricator.WithMaxRetries(cfg.Phabricator.MaxRetries),
	)
	if err != nil {
		return err
	}

	store, err := cache.New()
	if err != nil {
		logger.Warn().Err(err).Msg("Continuing without the revision cache")
		store = nil
	}

	workflow := submit.NewWorkflow(repo, client, store, cfg, submitOpts)
	return workflow.Run(cmd.Context())
}
