package git_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/bkyoung/change-attribution/internal/adapter/git"
	"github.com/bkyoung/change-attribution/internal/domain"
)

type fixture struct {
	t    *testing.T
	dir  string
	repo *goGit.Repository
	wt   *goGit.Worktree
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := goGit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	return &fixture{t: t, dir: dir, repo: repo, wt: wt}
}

func (f *fixture) write(name, content string) {
	f.t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		f.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		f.t.Fatalf("write %s: %v", name, err)
	}
	if _, err := f.wt.Add(name); err != nil {
		f.t.Fatalf("add %s: %v", name, err)
	}
}

func (f *fixture) rename(from, to string) {
	f.t.Helper()
	if err := os.Rename(filepath.Join(f.dir, from), filepath.Join(f.dir, to)); err != nil {
		f.t.Fatalf("rename: %v", err)
	}
	if _, err := f.wt.Remove(from); err != nil {
		f.t.Fatalf("remove %s: %v", from, err)
	}
	if _, err := f.wt.Add(to); err != nil {
		f.t.Fatalf("add %s: %v", to, err)
	}
}

func (f *fixture) commit(message string) string {
	f.t.Helper()
	hash, err := f.wt.Commit(message, &goGit.CommitOptions{Author: signature(), Committer: signature()})
	if err != nil {
		f.t.Fatalf("commit: %v", err)
	}
	return hash.String()
}

func (f *fixture) tagHead(name string, annotated bool) {
	f.t.Helper()
	hash, err := f.repo.ResolveRevision("HEAD")
	if err != nil {
		f.t.Fatalf("resolve HEAD: %v", err)
	}
	var opts *goGit.CreateTagOptions
	if annotated {
		opts = &goGit.CreateTagOptions{Tagger: signature(), Message: name}
	}
	if _, err := f.repo.CreateTag(name, *hash, opts); err != nil {
		f.t.Fatalf("tag %s: %v", name, err)
	}
}

func (f *fixture) engine() *git.Engine {
	f.t.Helper()
	engine, err := git.Open(f.dir)
	if err != nil {
		f.t.Fatalf("open engine: %v", err)
	}
	return engine
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  "Test",
		Email: "test@example.com",
		When:  time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEngineTagsAndBranches(t *testing.T) {
	f := newFixture(t)
	f.write("Main.java", "class Main {}\n")
	f.commit("initial")
	f.tagHead("v1.0", false)
	f.tagHead("release-2.0", true)

	engine := f.engine()

	tags, err := engine.Tags()
	if err != nil {
		t.Fatalf("Tags returned error: %v", err)
	}
	if len(tags) != 2 || tags[0] != "release-2.0" || tags[1] != "v1.0" {
		t.Fatalf("Tags() = %v, want sorted [release-2.0 v1.0]", tags)
	}

	branches, err := engine.Branches()
	if err != nil {
		t.Fatalf("Branches returned error: %v", err)
	}
	if len(branches) != 1 || branches[0] != "master" {
		t.Fatalf("Branches() = %v, want [master]", branches)
	}
}

func TestEngineResolveRevisionPeelsAnnotatedTag(t *testing.T) {
	f := newFixture(t)
	f.write("Main.java", "class Main {}\n")
	commitSHA := f.commit("initial")
	f.tagHead("release-2.0", true)

	engine := f.engine()

	sha, err := engine.ResolveRevision("refs/tags/release-2.0")
	if err != nil {
		t.Fatalf("ResolveRevision returned error: %v", err)
	}
	if sha != commitSHA {
		t.Errorf("ResolveRevision = %s, want tagged commit %s", sha, commitSHA)
	}
}

func TestEngineCommitPatchAgainstFirstParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("Main.java", "int a = 1;\n")
	f.commit("initial")
	f.write("Main.java", "int a = 2;\n")
	second := f.commit("bump")

	engine := f.engine()

	patch, err := engine.CommitPatch(ctx, second)
	if err != nil {
		t.Fatalf("CommitPatch returned error: %v", err)
	}
	if !strings.Contains(patch, "-int a = 1;") || !strings.Contains(patch, "+int a = 2;") {
		t.Errorf("patch missing expected lines:\n%s", patch)
	}
}

func TestEngineCommitPatchRootCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("Main.java", "int a = 1;\n")
	root := f.commit("initial")

	engine := f.engine()

	patch, err := engine.CommitPatch(ctx, root)
	if err != nil {
		t.Fatalf("CommitPatch returned error: %v", err)
	}
	if !strings.Contains(patch, "+int a = 1;") {
		t.Errorf("root patch should add the file contents:\n%s", patch)
	}
}

func TestEngineDiffRangeDetectsRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("Old.java", "class Old {}\nclass Shared {}\n")
	first := f.commit("initial")
	f.rename("Old.java", "New.java")
	second := f.commit("rename")

	engine := f.engine()

	patch, err := engine.DiffRange(ctx, first, second)
	if err != nil {
		t.Fatalf("DiffRange returned error: %v", err)
	}
	if !strings.Contains(patch, "rename from Old.java") || !strings.Contains(patch, "rename to New.java") {
		t.Errorf("expected rename header in cross diff:\n%s", patch)
	}
}

func TestEngineCheckout(t *testing.T) {
	f := newFixture(t)
	f.write("Main.java", "first\n")
	first := f.commit("initial")
	f.write("Main.java", "second\n")
	f.commit("update")

	engine := f.engine()

	if err := engine.Checkout(first); err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(f.dir, "Main.java"))
	if err != nil {
		t.Fatalf("read worktree file: %v", err)
	}
	if string(content) != "first\n" {
		t.Errorf("worktree content = %q, want checked-out revision", content)
	}
}

func TestEngineCloneAndDestroy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("Main.java", "class Main {}\n")
	f.commit("initial")
	f.tagHead("v1.0", false)

	dest := filepath.Join(t.TempDir(), "clone")
	clone, err := git.Clone(ctx, f.dir, dest)
	if err != nil {
		t.Fatalf("Clone returned error: %v", err)
	}
	if clone.Dir() != dest {
		t.Errorf("Dir() = %s, want %s", clone.Dir(), dest)
	}

	tags, err := clone.Tags()
	if err != nil {
		t.Fatalf("Tags on clone returned error: %v", err)
	}
	if len(tags) != 1 || tags[0] != "v1.0" {
		t.Errorf("clone tags = %v, want [v1.0]", tags)
	}

	if err := clone.Destroy(); err != nil {
		t.Fatalf("Destroy returned error: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("clone directory still present after Destroy")
	}
}

func TestEngineWalkBranchBoundedAndOrdered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("Main.java", "one\n")
	first := f.commit("one")
	f.write("Main.java", "two\n")
	f.commit("two")
	f.write("Main.java", "three\n")
	third := f.commit("three")

	engine := f.engine()

	var visited []domain.Commit
	err := engine.WalkBranch(ctx, "master", 2, func(c domain.Commit) error {
		visited = append(visited, c)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkBranch returned error: %v", err)
	}
	if len(visited) != 2 {
		t.Fatalf("visited %d commits, want limit of 2", len(visited))
	}
	if visited[0].FullSHA != third {
		t.Errorf("first visit = %s, want branch head %s", visited[0].FullSHA, third)
	}
	if visited[0].SHA != third[:8] {
		t.Errorf("short sha = %s, want %s", visited[0].SHA, third[:8])
	}
	if visited[0].Branch != "master" {
		t.Errorf("branch = %s, want master", visited[0].Branch)
	}
	if visited[0].NumParents != 1 {
		t.Errorf("NumParents = %d, want 1", visited[0].NumParents)
	}
	if visited[1].FullSHA == first {
		t.Errorf("walk order wrong: second visit should not be the root commit")
	}
}

func TestEngineWalkBranchStopsOnSentinel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("Main.java", "one\n")
	f.commit("one")
	f.write("Main.java", "two\n")
	f.commit("two")

	engine := f.engine()

	visits := 0
	err := engine.WalkBranch(ctx, "master", 100, func(domain.Commit) error {
		visits++
		return git.ErrStopWalk
	})
	if err != nil {
		t.Fatalf("WalkBranch returned error: %v", err)
	}
	if visits != 1 {
		t.Errorf("visits = %d, want walk stopped after first", visits)
	}
}

func TestEngineWalkBranchPropagatesVisitError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("Main.java", "one\n")
	f.commit("one")

	engine := f.engine()

	boom := errors.New("boom")
	err := engine.WalkBranch(ctx, "master", 100, func(domain.Commit) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("WalkBranch error = %v, want wrapped visit error", err)
	}
}

func TestEngineFileAt(t *testing.T) {
	f := newFixture(t)
	f.write("Main.java", "first\n")
	first := f.commit("initial")
	f.write("Main.java", "second\n")
	f.commit("update")

	engine := f.engine()

	content, err := engine.FileAt(first, "Main.java")
	if err != nil {
		t.Fatalf("FileAt returned error: %v", err)
	}
	if content != "first\n" {
		t.Errorf("FileAt = %q, want content at first commit", content)
	}

	if _, err := engine.FileAt(first, "Missing.java"); err == nil {
		t.Error("FileAt for a missing path should return an error")
	}
}
