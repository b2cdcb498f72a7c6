// Package resolve maps human-readable version strings onto commit SHAs using
// per-project tag naming conventions.
package resolve

import (
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// maxCandidateTags bounds the similar-tag hint logged for unresolved versions.
const maxCandidateTags = 5

// RefSource is the slice of a repository the resolver needs: reference name
// listings plus single-revision resolution.
type RefSource interface {
	Tags() ([]string, error)
	Branches() ([]string, error)
	ResolveRevision(rev string) (string, error)
}

// Resolver resolves affected-version strings against one repository. The
// prefix list is ordered and project-specific; it is fixed at construction
// rather than re-derived per call.
type Resolver struct {
	refs     RefSource
	prefixes []string
	log      logrus.FieldLogger
}

// DefaultTagPrefixes is the generic fallback prefix list for projects with no
// explicit tag convention configured.
var DefaultTagPrefixes = []string{"v", "V", "release-", "rel/"}

func New(refs RefSource, prefixes []string, log logrus.FieldLogger) *Resolver {
	if len(prefixes) == 0 {
		prefixes = DefaultTagPrefixes
	}
	return &Resolver{refs: refs, prefixes: prefixes, log: log}
}

// Resolve tries, in order: exact tag, prefixed tag, branch, generic revision.
// First hit wins. An unresolvable version returns a resolution Failure and a
// VersionRef whose Method is ResolvedNone; callers record the gap and move on.
func (r *Resolver) Resolve(version string) (domain.VersionRef, error) {
	ref := domain.VersionRef{Version: version, Method: domain.ResolvedNone}

	tags, err := r.refs.Tags()
	if err != nil {
		return ref, domain.NewFailure(domain.FailureOperational, "list tags", err)
	}

	if lo.Contains(tags, version) {
		return r.toCommit(ref, "refs/tags/"+version, domain.ResolvedExactTag)
	}

	for _, prefix := range r.prefixes {
		candidate := prefix + version
		if candidate == version || !lo.Contains(tags, candidate) {
			continue
		}
		return r.toCommit(ref, "refs/tags/"+candidate, domain.ResolvedPrefixedTag)
	}

	branches, err := r.refs.Branches()
	if err != nil {
		return ref, domain.NewFailure(domain.FailureOperational, "list branches", err)
	}
	if lo.Contains(branches, version) {
		return r.toCommit(ref, "refs/heads/"+version, domain.ResolvedBranch)
	}

	if sha, err := r.refs.ResolveRevision(version); err == nil {
		ref.SHA = sha
		ref.Method = domain.ResolvedRef
		return ref, nil
	}

	r.logCandidates(version, tags)
	return ref, domain.NewFailure(domain.FailureResolution, "resolve version "+version, nil)
}

func (r *Resolver) toCommit(ref domain.VersionRef, rev string, method domain.ResolutionMethod) (domain.VersionRef, error) {
	sha, err := r.refs.ResolveRevision(rev)
	if err != nil {
		return ref, domain.NewFailure(domain.FailureOperational, "resolve "+rev, err)
	}
	ref.SHA = sha
	ref.Method = method
	return ref, nil
}

// logCandidates surfaces tags containing the version substring so operators
// can spot an unconfigured prefix convention.
func (r *Resolver) logCandidates(version string, tags []string) {
	candidates := lo.Filter(tags, func(tag string, _ int) bool {
		return strings.Contains(tag, version)
	})
	if len(candidates) == 0 {
		r.log.Warnf("version %q matched no tag, branch, or ref", version)
		return
	}

	shown := candidates
	if len(shown) > maxCandidateTags {
		shown = shown[:maxCandidateTags]
	}
	if remainder := len(candidates) - len(shown); remainder > 0 {
		r.log.Warnf("version %q matched no tag, branch, or ref; similar tags: %s (and %d more)",
			version, strings.Join(shown, ", "), remainder)
		return
	}
	r.log.Warnf("version %q matched no tag, branch, or ref; similar tags: %s",
		version, strings.Join(shown, ", "))
}
