package submit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/mozilla-conduit/review/internal/cache"
	"github.com/mozilla-conduit/review/internal/config"
	"github.com/mozilla-conduit/review/internal/git"
	"github.com/mozilla-conduit/review/internal/logger"
	"github.com/mozilla-conduit/review/internal/phabricator"
	"github.com/mozilla-conduit/review/internal/stack"
	"github.com/mozilla-conduit/review/internal/transform"
)

// Gateway is the slice of the API client the workflow needs
type Gateway interface {
	Conduit
	GetRevisions(ctx context.Context, ids []int) (map[int]*phabricator.Revision, error)
	AddComment(ctx context.Context, revPHID, comment string) error
	BaseURL() string
}

// Options control a single submit run
type Options struct {
	// Start and End bound the stack; empty values mean "from the upstream
	// base" and "HEAD"
	Start string
	End   string

	// Single submits only the End commit
	Single bool

	Reviewers []string
	Blockers  []string
	Blocking  bool

	Bug     string
	Message string

	WIP   bool
	NoWIP bool

	// Yes skips the confirmation prompt; Interactive forces it even when
	// submit.autoSubmit is configured
	Yes         bool
	Interactive bool

	// Force proceeds despite a dirty working tree; the final amend will
	// still refuse to rewrite over uncommitted changes
	Force bool
}

// Workflow wires extraction, resolution, planning, execution and annotation
// into the submit command.
type Workflow struct {
	repo   *git.Repository
	client Gateway
	store  *cache.Cache
	cfg    *config.Config
	opts   Options

	// Out receives user-facing output; Confirm answers the submission
	// prompt. Both have sensible defaults and exist for tests and the CLI.
	Out     io.Writer
	Confirm func(prompt string) (string, error)
}

// NewWorkflow creates a submit workflow
func NewWorkflow(repo *git.Repository, client Gateway, store *cache.Cache, cfg *config.Config, opts Options) *Workflow {
	return &Workflow{
		repo:    repo,
		client:  client,
		store:   store,
		cfg:     cfg,
		opts:    opts,
		Out:     os.Stdout,
		Confirm: stdinConfirm,
	}
}

func stdinConfirm(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(answer)), nil
}

// Run executes the whole submit flow
func (w *Workflow) Run(ctx context.Context) error {
	commits, err := w.extract(ctx)
	if err != nil {
		return err
	}
	w.decorate(commits)

	if err := w.preflight(); err != nil {
		return err
	}

	fromCache, err := ResolveIdentities(commits, w.store)
	if err != nil {
		return err
	}

	remote, err := w.client.GetRevisions(ctx, BoundIDs(commits))
	if err != nil {
		return err
	}
	PruneCacheBindings(commits, remote, w.store, fromCache)
	if err := CheckBound(commits, remote); err != nil {
		return err
	}

	changes := make([][]transform.Change, len(commits))
	for i, commit := range commits {
		changes[i] = transform.Convert(commit)
	}

	plan, err := BuildPlan(commits, remote, changes)
	if err != nil {
		return err
	}

	w.printStack(commits, remote)
	for _, warning := range plan.Warnings {
		color.New(color.FgYellow).Fprintf(w.Out, "WARNING: %s\n", warning)
	}

	if plan.Empty() {
		fmt.Fprintln(w.Out, "Stack is already up to date.")
		return w.annotate(commits)
	}

	ok, err := w.confirmPlan(plan)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w.Out, "Submission cancelled.")
		return nil
	}

	executor := NewExecutor(w.client, w.store)
	result, execErr := executor.Execute(ctx, plan)

	if w.opts.Message != "" {
		w.addComments(ctx, plan, result)
	}

	// Stamp markers for everything that did complete, even on a partial
	// run, so a rerun resumes instead of resubmitting.
	if err := w.annotate(commits); err != nil {
		if execErr != nil {
			logger.Error().Err(err).Msg("Amend failed after a halted submission")
			return execErr
		}
		return err
	}

	if execErr != nil {
		return execErr
	}

	w.printResults(commits)
	return nil
}

// extract resolves the commit range and lists the stack
func (w *Workflow) extract(ctx context.Context) ([]*stack.Commit, error) {
	end := w.opts.End
	if end == "" {
		end = "HEAD"
	}
	endHash, err := w.repo.ResolveRevision(end)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", end, err)
	}

	var startHash string
	switch {
	case w.opts.Single:
		startHash, err = w.repo.ResolveRevision(end + "~1")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent of %q: %w", end, err)
		}
	case w.opts.Start != "":
		startHash, err = w.repo.ResolveRevision(w.opts.Start)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %q: %w", w.opts.Start, err)
		}
	default:
		startHash, err = w.repo.DefaultBase(w.cfg.Git.Remote)
		if err != nil {
			return nil, err
		}
	}

	return w.repo.ListCommits(ctx, startHash, endHash, w.cfg.Submit.MaxStackSize)
}

// decorate folds flags and title conventions into each commit descriptor
func (w *Workflow) decorate(commits []*stack.Commit) {
	blockers := MakeBlocking(w.opts.Blockers)

	for _, commit := range commits {
		commit.Title = MorphBlockingReviewers(commit.Title)

		reviewers := ParseReviewers(commit.Title)
		reviewers = append(reviewers, w.opts.Reviewers...)
		reviewers = append(reviewers, blockers...)
		if w.opts.Blocking || w.cfg.Submit.AlwaysBlocking {
			reviewers = MakeBlocking(reviewers)
		}
		commit.Reviewers = RemoveDuplicates(reviewers)

		commit.WIP = w.opts.WIP || (!w.opts.NoWIP && IsWIPTitle(commit.Title))

		commit.BugID = w.opts.Bug
		if commit.BugID == "" {
			commit.BugID = ParseBugID(commit.Title)
		}
	}
}

// preflight checks the working tree before anything is sent anywhere
func (w *Workflow) preflight() error {
	clean, err := w.repo.IsWorktreeClean()
	if err != nil {
		return err
	}
	if !clean && !w.opts.Force {
		return fmt.Errorf("%w; commit or stash them, or pass --force", git.ErrDirtyWorktree)
	}

	if w.cfg.Submit.WarnUntracked {
		untracked, err := w.repo.Untracked()
		if err != nil {
			return err
		}
		for _, path := range untracked {
			color.New(color.FgYellow).Fprintf(w.Out, "WARNING: untracked file %s will not be submitted\n", path)
		}
	}

	return nil
}

// confirmPlan asks the user before writing anything, unless auto-submission
// applies. Answering "always" persists auto-submission in the config file.
func (w *Workflow) confirmPlan(plan *Plan) (bool, error) {
	if w.opts.Yes || (w.cfg.Submit.AutoSubmit && !w.opts.Interactive) {
		return true, nil
	}

	prompt := fmt.Sprintf("Submit %d operation(s)? (y)es / (a)lways / (n)o: ", len(plan.Ops))
	answer, err := w.Confirm(prompt)
	if err != nil {
		return false, err
	}

	switch answer {
	case "y", "yes":
		return true, nil
	case "a", "always":
		if err := config.SetAutoSubmit(true); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist auto-submit setting")
		}
		return true, nil
	default:
		return false, nil
	}
}

// addComments posts the --message text on every revision that was updated
func (w *Workflow) addComments(ctx context.Context, plan *Plan, result *Result) {
	for i, op := range plan.Ops {
		if op.Kind != OpUpdate {
			continue
		}
		if _, done := result.Revisions[i]; !done {
			continue
		}
		if err := w.client.AddComment(ctx, op.PHID, w.opts.Message); err != nil {
			logger.Warn().Err(err).Int("revision", op.RevID).Msg("Failed to add update comment")
		}
	}
}

func (w *Workflow) annotate(commits []*stack.Commit) error {
	annotator := NewAnnotator(w.repo, w.client.BaseURL())
	return annotator.Annotate(commits)
}

// printStack renders the stack preview, newest commit first
func (w *Workflow) printStack(commits []*stack.Commit, remote map[int]*phabricator.Revision) {
	bound := color.New(color.FgGreen)
	fresh := color.New(color.FgYellow)

	for i := len(commits) - 1; i >= 0; i-- {
		commit := commits[i]
		label := "(New)   "
		paint := fresh
		if commit.RevID > 0 && remote[commit.RevID] != nil {
			label = fmt.Sprintf("(D%d)", commit.RevID)
			paint = bound
		}
		paint.Fprintf(w.Out, "%-10s", label)
		fmt.Fprintf(w.Out, " %s %s\n", commit.ShortNode(), commit.Title)
	}
}

// printResults lists the revision URL for every commit in the stack
func (w *Workflow) printResults(commits []*stack.Commit) {
	fmt.Fprintln(w.Out, "\nCompleted:")
	for _, commit := range commits {
		if commit.RevID == 0 {
			continue
		}
		fmt.Fprintf(w.Out, "  %s -> %s/D%d\n", commit.ShortNode(), strings.TrimRight(w.client.BaseURL(), "/"), commit.RevID)
	}
}
