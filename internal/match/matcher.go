// Package match reconciles the lines a fix commit deleted with the deleted
// lines of a second diff computed between the affected version and the fix
// commit. Literal content comparison is the only signal: byte-identical
// (whitespace-trimmed) matching trades recall for precision, since no
// line-tracking primitive exists across an arbitrary version gap.
package match

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// DebugLogger receives near-miss diagnostics for unidentified lines.
// *logrus.Entry and *logrus.Logger both satisfy it.
type DebugLogger interface {
	Debugf(format string, args ...interface{})
}

// Matcher pairs fix-commit file changes with cross-diff file changes and
// attributes deleted lines by content.
type Matcher struct {
	// Extensions restricts matching to tracked source files (e.g. ".java").
	// Empty means every file is tracked.
	Extensions []string
	// Debug, when set, logs the nearest cross-diff candidate for every
	// fix-side line that stayed unidentified. Diagnostics only; matching
	// semantics do not depend on it.
	Debug DebugLogger
}

// Match attributes the fix commit's deleted lines to affected-version line
// numbers. fixFiles describe the fix commit relative to its first parent;
// crossFiles describe the diff from the affected version to the fix commit
// (rename detection enabled). One LineAttribution is produced per fix-side
// file that deleted at least one line; files the fix commit added are never
// attributed.
func (m *Matcher) Match(fixFiles, crossFiles []domain.FileChange) []domain.LineAttribution {
	var results []domain.LineAttribution

	for _, fix := range fixFiles {
		if !m.eligible(fix) {
			continue
		}
		fixDeletes := deletedLines(fix)
		if len(fixDeletes) == 0 {
			continue
		}

		cross, found := counterpart(crossFiles, fix)

		affectedName := fix.Path
		if fix.Kind == domain.ChangeRename && fix.OldPath != "" {
			affectedName = fix.OldPath
		}
		if found {
			affectedName = cross.Path
			if cross.Kind == domain.ChangeRename && cross.OldPath != "" {
				affectedName = cross.OldPath
			}
		}

		var candidates []domain.LineChange
		if found && cross.Kind != domain.ChangeAdd {
			candidates = deletedLines(cross)
		}

		var modified, unidentified []int
		for _, line := range fixDeletes {
			matched, lineNumber := firstContentMatch(line.Content, candidates)
			if matched {
				modified = append(modified, lineNumber)
				continue
			}
			unidentified = append(unidentified, line.LineNumber)
			m.debugNearMiss(fix.Path, line, candidates)
		}

		entry := domain.LineAttribution{
			AffectedVersion: domain.AffectedFile{
				Filename:      affectedName,
				ModifiedLines: sortedUnique(modified),
			},
			FixingCommit: domain.FixingFile{
				Filename:          fix.Path,
				UnidentifiedLines: sortedUnique(unidentified),
			},
		}
		if affectedName != fix.Path {
			entry.IsRename = true
			entry.OldPath = affectedName
			entry.NewPath = fix.Path
		}
		results = append(results, entry)
	}

	return results
}

// eligible keeps MODIFY, DELETE and RENAME fix-side files with a tracked
// extension. ADD files have no pre-fix history in the affected version.
func (m *Matcher) eligible(file domain.FileChange) bool {
	switch file.Kind {
	case domain.ChangeModify, domain.ChangeDelete, domain.ChangeRename:
	default:
		return false
	}
	if len(m.Extensions) == 0 {
		return true
	}
	return domain.HasAnyExtension(file.Path, m.Extensions) ||
		domain.HasAnyExtension(file.OldPath, m.Extensions)
}

// counterpart locates the cross-diff file describing the same file as the
// fix-side change. The fix-side path is the cross-diff's new side; when the
// cross-diff did not see the fix-side path (rename undetected across the
// gap), the commit-reported old path is tried against the cross-diff's keys.
func counterpart(crossFiles []domain.FileChange, fix domain.FileChange) (domain.FileChange, bool) {
	for _, cross := range crossFiles {
		if cross.Path == fix.Path {
			return cross, true
		}
	}
	if fix.OldPath != "" {
		for _, cross := range crossFiles {
			if cross.Path == fix.OldPath || cross.OldPath == fix.OldPath {
				return cross, true
			}
		}
	}
	return domain.FileChange{}, false
}

// firstContentMatch scans candidates in order and returns the line number of
// the first whose trimmed content equals the trimmed fix-side content.
// First match wins; identical duplicate lines are a known precision
// limitation, not disambiguated by proximity.
func firstContentMatch(content string, candidates []domain.LineChange) (bool, int) {
	trimmed := strings.TrimSpace(content)
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.Content) == trimmed {
			return true, candidate.LineNumber
		}
	}
	return false, 0
}

func deletedLines(file domain.FileChange) []domain.LineChange {
	var deletes []domain.LineChange
	for _, chunk := range file.Chunks {
		for _, change := range chunk.Changes {
			if change.Kind == domain.LineDelete {
				deletes = append(deletes, change)
			}
		}
	}
	return deletes
}

func sortedUnique(lines []int) []int {
	unique := lo.Uniq(lines)
	sort.Ints(unique)
	return unique
}

func (m *Matcher) debugNearMiss(path string, line domain.LineChange, candidates []domain.LineChange) {
	if m.Debug == nil || len(candidates) == 0 {
		return
	}
	best, ratio := nearestCandidate(strings.TrimSpace(line.Content), candidates)
	m.Debug.Debugf("no match for %s:%d %q (nearest candidate line %d at %.2f similarity)",
		path, line.LineNumber, strings.TrimSpace(line.Content), best, ratio)
}

// nearestCandidate reports the candidate line most similar to content,
// measured as 1 - levenshtein/longest over the character diff.
func nearestCandidate(content string, candidates []domain.LineChange) (lineNumber int, ratio float64) {
	dmp := diffmatchpatch.New()
	for _, candidate := range candidates {
		other := strings.TrimSpace(candidate.Content)
		longest := len(content)
		if len(other) > longest {
			longest = len(other)
		}
		var score float64
		if longest == 0 {
			score = 1
		} else {
			diffs := dmp.DiffMain(content, other, false)
			score = 1 - float64(dmp.DiffLevenshtein(diffs))/float64(longest)
		}
		if score > ratio {
			ratio = score
			lineNumber = candidate.LineNumber
		}
	}
	return lineNumber, ratio
}
