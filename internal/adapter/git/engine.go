package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// ErrStopWalk ends a WalkBranch early without reporting an error.
var ErrStopWalk = errors.New("stop walk")

// Engine exposes the repository operations the scanner and the attribution
// pipeline need, backed by go-git. One Engine wraps one repository directory;
// disposable clones get their own Engine via Clone.
type Engine struct {
	dir  string
	repo *goGit.Repository
}

// Open wraps an existing repository directory.
func Open(dir string) (*Engine, error) {
	repo, err := goGit.PlainOpenWithOptions(dir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repo %s: %w", dir, err)
	}
	return &Engine{dir: dir, repo: repo}, nil
}

// Clone copies the repository at src (a local path or remote URL) into dest
// and returns an Engine over the copy. Tags are fetched so version resolution
// works inside the clone.
func Clone(ctx context.Context, src, dest string) (*Engine, error) {
	repo, err := goGit.PlainCloneContext(ctx, dest, false, &goGit.CloneOptions{
		URL:  src,
		Tags: goGit.AllTags,
	})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", src, err)
	}
	return &Engine{dir: dest, repo: repo}, nil
}

// Dir returns the repository's working directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Destroy deletes the repository directory. Intended for disposable clones.
func (e *Engine) Destroy() error {
	if err := os.RemoveAll(e.dir); err != nil {
		return fmt.Errorf("remove clone %s: %w", e.dir, err)
	}
	return nil
}

// Tags returns all tag names, sorted.
func (e *Engine) Tags() ([]string, error) {
	iter, err := e.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return collectRefNames(iter)
}

// Branches returns all local branch names, sorted. Remote-tracking refs are
// not included.
func (e *Engine) Branches() ([]string, error) {
	iter, err := e.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return collectRefNames(iter)
}

func collectRefNames(iter storer.ReferenceIter) ([]string, error) {
	var names []string
	err := iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate refs: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// ResolveRevision maps any revision spelling (tag, branch, short hash, HEAD~n)
// to a full commit SHA. Annotated tags are peeled to the commit they point at.
func (e *Engine) ResolveRevision(rev string) (string, error) {
	commit, err := e.commitAt(rev)
	if err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}

// Checkout moves the working tree to the given revision, discarding local
// modifications.
func (e *Engine) Checkout(rev string) error {
	commit, err := e.commitAt(rev)
	if err != nil {
		return err
	}
	wt, err := e.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Checkout(&goGit.CheckoutOptions{Hash: commit.Hash, Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", rev, err)
	}
	return nil
}

// WalkBranch visits commits reachable from the branch head, newest first, up
// to limit commits. The visit callback may return ErrStopWalk to end the walk
// early; any other error aborts it.
func (e *Engine) WalkBranch(ctx context.Context, branch string, limit int, visit func(domain.Commit) error) error {
	head, err := e.repo.ResolveRevision(plumbing.Revision("refs/heads/" + branch))
	if err != nil {
		return fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	iter, err := e.repo.Log(&goGit.LogOptions{From: *head, Order: goGit.LogOrderCommitterTime})
	if err != nil {
		return fmt.Errorf("log %s: %w", branch, err)
	}
	defer iter.Close()

	seen := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen++
		if seen > limit {
			return storer.ErrStop
		}
		if err := visit(commitRecord(c, branch)); err != nil {
			if errors.Is(err, ErrStopWalk) {
				return storer.ErrStop
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk branch %s: %w", branch, err)
	}
	return nil
}

// CommitPatch returns the unified diff of a commit against its first parent,
// or against the empty tree for a root commit. Renames are detected so the
// patch carries rename from/to headers.
func (e *Engine) CommitPatch(ctx context.Context, rev string) (string, error) {
	commit, err := e.commitAt(rev)
	if err != nil {
		return "", err
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return "", fmt.Errorf("first parent of %s: %w", rev, err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return "", fmt.Errorf("tree of %s parent: %w", rev, err)
		}
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", rev, err)
	}
	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", rev, err)
	}
	return encodeChanges(ctx, changes)
}

// DiffRange returns the unified diff between two revisions with rename
// detection enabled.
func (e *Engine) DiffRange(ctx context.Context, fromRev, toRev string) (string, error) {
	from, err := e.commitAt(fromRev)
	if err != nil {
		return "", err
	}
	to, err := e.commitAt(toRev)
	if err != nil {
		return "", err
	}
	fromTree, err := from.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", fromRev, err)
	}
	toTree, err := to.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", toRev, err)
	}
	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return "", fmt.Errorf("diff %s..%s: %w", fromRev, toRev, err)
	}
	return encodeChanges(ctx, changes)
}

// FileAt returns the content of path at the given revision.
func (e *Engine) FileAt(rev, path string) (string, error) {
	commit, err := e.commitAt(rev)
	if err != nil {
		return "", err
	}
	file, err := commit.File(path)
	if err != nil {
		return "", fmt.Errorf("file %s at %s: %w", path, rev, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s at %s: %w", path, rev, err)
	}
	return content, nil
}

func (e *Engine) commitAt(rev string) (*object.Commit, error) {
	hash, err := e.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	return e.peelToCommit(*hash)
}

// peelToCommit follows annotated tag objects down to the commit they tag.
func (e *Engine) peelToCommit(hash plumbing.Hash) (*object.Commit, error) {
	if tag, err := e.repo.TagObject(hash); err == nil {
		commit, err := tag.Commit()
		if err != nil {
			return nil, fmt.Errorf("peel tag %s: %w", tag.Name, err)
		}
		return commit, nil
	}
	commit, err := e.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", hash, err)
	}
	return commit, nil
}

func commitRecord(c *object.Commit, branch string) domain.Commit {
	full := c.Hash.String()
	record := domain.Commit{
		SHA:         full[:8],
		FullSHA:     full,
		NumParents:  c.NumParents(),
		Author:      c.Author.Name,
		AuthorEmail: c.Author.Email,
		Date:        c.Committer.When.Format(time.RFC3339),
		Message:     c.Message,
		Branch:      branch,
	}
	if c.NumParents() > 0 {
		record.ParentFullSHA = c.ParentHashes[0].String()
	}
	return record
}

func encodePatch(patch *object.Patch) (string, error) {
	var buf bytes.Buffer
	if err := patch.Encode(&buf); err != nil {
		return "", fmt.Errorf("encode patch: %w", err)
	}
	return buf.String(), nil
}

func encodeChanges(ctx context.Context, changes object.Changes) (string, error) {
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return "", fmt.Errorf("materialize patch: %w", err)
	}
	return encodePatch(patch)
}
