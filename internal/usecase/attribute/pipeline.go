// Package attribute links each issue's fix commits to the source lines of an
// affected version. Every (issue, affected version) unit works in its own
// disposable clone so checkouts can never interfere across units.
package attribute

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/diff"
	"github.com/bkyoung/change-attribution/internal/domain"
	"github.com/bkyoung/change-attribution/internal/match"
	"github.com/bkyoung/change-attribution/internal/usecase/resolve"
)

// maxErrorDetail caps the git error text stored in result markers and logs.
const maxErrorDetail = 200

// Repo is one disposable repository snapshot. It is a superset of the
// resolver's RefSource, so a Repo feeds resolution directly.
type Repo interface {
	Tags() ([]string, error)
	Branches() ([]string, error)
	ResolveRevision(rev string) (string, error)
	Checkout(rev string) error
	DiffRange(ctx context.Context, fromRev, toRev string) (string, error)
	FileAt(rev, path string) (string, error)
	Destroy() error
}

// Cloner produces disposable snapshots of the project repository.
type Cloner interface {
	Clone(ctx context.Context, src, dest string) (Repo, error)
}

// ClonerFunc adapts a plain clone function to the Cloner interface.
type ClonerFunc func(ctx context.Context, src, dest string) (Repo, error)

func (f ClonerFunc) Clone(ctx context.Context, src, dest string) (Repo, error) {
	return f(ctx, src, dest)
}

// Progress receives one step per analyzed (issue, affected version) unit.
type Progress interface {
	Describe(text string)
	Add(n int) error
}

// Options configure one project's attribution run.
type Options struct {
	// Source is the local mirror path disposable clones are taken from.
	Source string
	// BrowseURL builds affected-version and fix-commit links. Empty leaves
	// links unset.
	BrowseURL string
	// TagPrefixes is the project's ordered tag naming convention.
	TagPrefixes []string
	// Extensions restricts matching to tracked source files.
	Extensions []string
	// WorkDir hosts the disposable clones; empty means the system temp dir.
	WorkDir string
	// Progress, when set, is stepped once per (issue, affected version).
	Progress Progress
}

// Pipeline runs the attribution analysis for one project.
type Pipeline struct {
	cloner  Cloner
	opts    Options
	log     *logrus.Logger
	matcher *match.Matcher
}

func New(cloner Cloner, opts Options, log *logrus.Logger) *Pipeline {
	matcher := &match.Matcher{Extensions: opts.Extensions}
	if log.IsLevelEnabled(logrus.DebugLevel) {
		matcher.Debug = log
	}
	return &Pipeline{cloner: cloner, opts: opts, log: log, matcher: matcher}
}

// Run attributes every issue's fix commits to each of its affected versions.
// Issues without affected versions or without commits are skipped. Per-unit
// git failures become error markers inside the results; only a missing
// repository path fails the whole project.
func (p *Pipeline) Run(ctx context.Context, issues map[string]domain.IssueCommits) (map[string]domain.IssueAttribution, error) {
	if _, err := os.Stat(p.opts.Source); err != nil {
		return nil, domain.NewFailure(domain.FailureConfiguration, "repository path "+p.opts.Source, err)
	}

	out := make(map[string]domain.IssueAttribution, len(issues))

	keys := lo.Keys(issues)
	sort.Strings(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ic := issues[key]

		versions := nonEmptyVersions(ic.Issue.Affects)
		switch {
		case len(ic.Commits) == 0:
			p.log.WithField("issue", key).Debug("no fix commits, skipping")
			continue
		case len(versions) == 0:
			p.log.WithField("issue", key).Warn("no affected versions, skipping")
			continue
		}

		var results []domain.AnalysisResult
		for _, version := range versions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p.describe(fmt.Sprintf("%s @ %s", key, version))
			results = append(results, p.analyzeVersion(ctx, ic, version)...)
			p.step()
		}

		out[key] = domain.IssueAttribution{Issue: ic.Issue, AnalysisResults: results}
	}

	p.logSummary(out)
	return out, nil
}

// analyzeVersion clones, resolves the version, and analyzes every fix commit
// against it. An unresolved version yields a single marker result; a resolved
// one yields one result per fix commit. The clone is destroyed on every exit
// path.
func (p *Pipeline) analyzeVersion(ctx context.Context, ic domain.IssueCommits, version string) []domain.AnalysisResult {
	marker := domain.AnalysisResult{
		AffectedVersion: version,
		Changes:         []domain.LineAttribution{},
	}

	dest, err := os.MkdirTemp(p.opts.WorkDir, "attribution-*")
	if err != nil {
		marker.Error = "create workspace: " + truncateDetail(err.Error())
		p.log.WithError(err).WithField("issue", ic.Issue.Key).Warn("workspace creation failed")
		return []domain.AnalysisResult{marker}
	}

	repo, err := p.cloner.Clone(ctx, p.opts.Source, dest)
	if err != nil {
		_ = os.RemoveAll(dest)
		marker.Error = "clone repository: " + truncateDetail(err.Error())
		p.log.WithError(err).WithFields(logrus.Fields{
			"issue": ic.Issue.Key, "version": version,
		}).Warn("disposable clone failed")
		return []domain.AnalysisResult{marker}
	}
	defer func() {
		if derr := repo.Destroy(); derr != nil {
			p.log.WithError(derr).WithField("dir", dest).Warn("could not remove disposable clone")
		}
	}()

	resolver := resolve.New(repo, p.opts.TagPrefixes, p.log)
	ref, err := resolver.Resolve(version)
	if err != nil {
		if domain.FailureIs(err, domain.FailureResolution) {
			marker.Error = "Could not resolve version " + version
		} else {
			marker.Error = truncateDetail(err.Error())
			p.log.WithError(err).WithFields(logrus.Fields{
				"issue": ic.Issue.Key, "version": version,
			}).Warn("version resolution failed")
		}
		return []domain.AnalysisResult{marker}
	}

	results := make([]domain.AnalysisResult, 0, len(ic.Commits))
	for _, commit := range ic.Commits {
		results = append(results, p.analyzeCommit(ctx, repo, ref, commit))
	}
	return results
}

// analyzeCommit checks out the fix commit, cross-diffs it against the
// resolved affected version, and attributes the fix's deleted lines.
func (p *Pipeline) analyzeCommit(ctx context.Context, repo Repo, ref domain.VersionRef, commit domain.Commit) domain.AnalysisResult {
	result := domain.AnalysisResult{
		AffectedVersion:    ref.Version,
		AffectedVersionSHA: ref.SHA,
		FixingCommitSHA:    commit.FullSHA,
		FixingCommitURL:    commit.URL,
		CheckoutCommand:    "git checkout " + ref.SHA,
		Changes:            []domain.LineAttribution{},
	}
	if p.opts.BrowseURL != "" {
		base := strings.TrimRight(p.opts.BrowseURL, "/")
		result.AffectedVersionURL = base + "/tree/" + ref.SHA
		if result.FixingCommitURL == "" {
			result.FixingCommitURL = base + "/commit/" + commit.FullSHA
		}
	}

	if err := repo.Checkout(commit.FullSHA); err != nil {
		result.Error = "checkout fix commit: " + truncateDetail(err.Error())
		p.log.WithError(err).WithField("sha", commit.SHA).Warn("fix commit checkout failed")
		return result
	}

	diffText, err := repo.DiffRange(ctx, ref.SHA, commit.FullSHA)
	if err != nil {
		result.Error = "cross-diff: " + truncateDetail(err.Error())
		p.log.WithError(err).WithFields(logrus.Fields{
			"sha": commit.SHA, "version": ref.Version,
		}).Warn("cross-diff failed")
		return result
	}

	crossFiles := diff.Parse(diffText)
	result.Changes = p.matcher.Match(commit.FilesChanged.Files, crossFiles)
	if result.Changes == nil {
		result.Changes = []domain.LineAttribution{}
	}

	if p.log.IsLevelEnabled(logrus.DebugLevel) {
		p.probeUnmatchedFiles(repo, ref, result.Changes)
	}
	return result
}

// probeUnmatchedFiles explains all-unidentified files: a file whose every
// fix-side line stayed unidentified usually does not exist yet at the
// affected version. Debug-level only, since each probe reads the clone.
func (p *Pipeline) probeUnmatchedFiles(repo Repo, ref domain.VersionRef, changes []domain.LineAttribution) {
	for _, change := range changes {
		if len(change.AffectedVersion.ModifiedLines) > 0 || len(change.FixingCommit.UnidentifiedLines) == 0 {
			continue
		}
		name := change.AffectedVersion.Filename
		if _, err := repo.FileAt(ref.SHA, name); err != nil {
			p.log.Debugf("%s is absent at %s: every fix line unidentified", name, ref.Version)
			continue
		}
		p.log.Debugf("%s exists at %s but no deleted-line content matched", name, ref.Version)
	}
}

func (p *Pipeline) logSummary(out map[string]domain.IssueAttribution) {
	var results, errored, attributed int
	for _, attribution := range out {
		for _, result := range attribution.AnalysisResults {
			results++
			if result.Error != "" {
				errored++
			}
			if len(result.Changes) > 0 {
				attributed++
			}
		}
	}
	p.log.WithFields(logrus.Fields{
		"issues":     len(out),
		"results":    results,
		"attributed": attributed,
		"errored":    errored,
	}).Info("attribution complete")
}

func nonEmptyVersions(versions []string) []string {
	return lo.Filter(versions, func(v string, _ int) bool { return v != "" })
}

func truncateDetail(detail string) string {
	if len(detail) <= maxErrorDetail {
		return detail
	}
	return detail[:maxErrorDetail] + "..."
}

func (p *Pipeline) describe(text string) {
	if p.opts.Progress != nil {
		p.opts.Progress.Describe(text)
	}
}

func (p *Pipeline) step() {
	if p.opts.Progress != nil {
		_ = p.opts.Progress.Add(1)
	}
}
