package diff

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/bkyoung/change-attribution/internal/domain"
)

// Parse parses unified-diff text into per-file changes. It accepts full
// multi-file git diff output as well as bare single-file hunk text (no
// "diff --git" header).
func Parse(text string) []domain.FileChange {
	if text == "" {
		return nil
	}

	var (
		files   []domain.FileChange
		current *domain.FileChange
		chunk   *domain.Chunk
		oldPath string
		oldLine int
		newLine int
	)

	flushChunk := func() {
		if current != nil && chunk != nil {
			current.Chunks = append(current.Chunks, *chunk)
		}
		chunk = nil
	}
	flushFile := func() {
		flushChunk()
		if current != nil {
			finalizeCounts(current)
			files = append(files, *current)
		}
		current = nil
		oldPath = ""
	}

	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "diff --git"):
			flushFile()
			current = &domain.FileChange{Kind: domain.ChangeModify}

		case strings.HasPrefix(line, "@@"):
			flushChunk()
			if current == nil {
				// Bare hunk text without a file header.
				current = &domain.FileChange{Kind: domain.ChangeModify}
			}
			parsed, ok := parseHunkHeader(line)
			if !ok {
				// Malformed header: discard until the next boundary.
				continue
			}
			chunk = &parsed
			oldLine = parsed.OldStart
			newLine = parsed.NewStart

		case chunk != nil:
			switch {
			case strings.HasPrefix(line, "\\ "):
				// "\ No newline at end of file"
			case strings.HasPrefix(line, "+++ "), strings.HasPrefix(line, "--- "):
				// Header spellings excluded from line records by format
				// definition.
			case line[0] == '+':
				chunk.Changes = append(chunk.Changes, domain.LineChange{
					LineNumber: newLine,
					Kind:       domain.LineAdd,
					Content:    line[1:],
				})
				newLine++
			case line[0] == '-':
				chunk.Changes = append(chunk.Changes, domain.LineChange{
					LineNumber: oldLine,
					Kind:       domain.LineDelete,
					Content:    line[1:],
				})
				oldLine++
			default:
				// Context line (leading space, or tolerated unknown).
				oldLine++
				newLine++
			}

		case current != nil:
			parseFileHeader(line, current, &oldPath)
		}
	}
	flushFile()

	return files
}

// ParseChunks parses diff text covering a single file and returns its hunks.
func ParseChunks(text string) []domain.Chunk {
	var chunks []domain.Chunk
	for _, file := range Parse(text) {
		chunks = append(chunks, file.Chunks...)
	}
	return chunks
}

// Retain keeps files whose old or new path ends in one of the tracked
// extensions. An empty extension list retains everything.
func Retain(files []domain.FileChange, extensions []string) []domain.FileChange {
	if len(extensions) == 0 {
		return files
	}
	return lo.Filter(files, func(file domain.FileChange, _ int) bool {
		return domain.HasAnyExtension(file.Path, extensions) ||
			domain.HasAnyExtension(file.OldPath, extensions)
	})
}

// parseFileHeader interprets one extended-header line between "diff --git"
// and the first hunk.
func parseFileHeader(line string, file *domain.FileChange, oldPath *string) {
	switch {
	case strings.HasPrefix(line, "rename from "):
		file.Kind = domain.ChangeRename
		file.OldPath = strings.TrimPrefix(line, "rename from ")
	case strings.HasPrefix(line, "rename to "):
		file.Kind = domain.ChangeRename
		file.Path = strings.TrimPrefix(line, "rename to ")
	case strings.HasPrefix(line, "copy from "):
		file.Kind = domain.ChangeRename
		file.OldPath = strings.TrimPrefix(line, "copy from ")
	case strings.HasPrefix(line, "copy to "):
		file.Kind = domain.ChangeRename
		file.Path = strings.TrimPrefix(line, "copy to ")
	case strings.HasPrefix(line, "new file mode "):
		file.Kind = domain.ChangeAdd
	case strings.HasPrefix(line, "deleted file mode "):
		file.Kind = domain.ChangeDelete
	case strings.HasPrefix(line, "--- "):
		target := strings.TrimPrefix(line, "--- ")
		if target == "/dev/null" {
			file.Kind = domain.ChangeAdd
			return
		}
		*oldPath = trimPathPrefix(target)
	case strings.HasPrefix(line, "+++ "):
		target := strings.TrimPrefix(line, "+++ ")
		if target == "/dev/null" {
			// The file is gone on the new side; key it by its old path.
			file.Kind = domain.ChangeDelete
			file.Path = *oldPath
			return
		}
		if file.Kind != domain.ChangeRename {
			file.Path = trimPathPrefix(target)
		}
	}
	// Other header lines (index, mode, similarity) carry nothing we track.
}

// trimPathPrefix strips the conventional a/ or b/ diff path prefix.
func trimPathPrefix(path string) string {
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

// parseHunkHeader parses "@@ -oldStart[,oldCount] +newStart[,newCount] @@".
// Missing counts default to 1.
func parseHunkHeader(line string) (domain.Chunk, bool) {
	chunk := domain.Chunk{}

	parts := strings.Split(line, "@@")
	if len(parts) < 2 {
		return chunk, false
	}

	var sawOld, sawNew bool
	for _, field := range strings.Fields(strings.TrimSpace(parts[1])) {
		switch {
		case strings.HasPrefix(field, "-"):
			start, count, ok := parseRange(strings.TrimPrefix(field, "-"))
			if !ok {
				return chunk, false
			}
			chunk.OldStart = start
			chunk.OldCount = count
			sawOld = true
		case strings.HasPrefix(field, "+"):
			start, count, ok := parseRange(strings.TrimPrefix(field, "+"))
			if !ok {
				return chunk, false
			}
			chunk.NewStart = start
			chunk.NewCount = count
			sawNew = true
		}
	}

	return chunk, sawOld && sawNew
}

// parseRange parses "start,count" or "start" (count defaults to 1).
func parseRange(s string) (start, count int, ok bool) {
	var err error
	if idx := strings.Index(s, ","); idx >= 0 {
		start, err = strconv.Atoi(s[:idx])
		if err != nil {
			return 0, 0, false
		}
		count, err = strconv.Atoi(s[idx+1:])
		if err != nil {
			return 0, 0, false
		}
		return start, count, true
	}
	start, err = strconv.Atoi(s)
	if err != nil {
		return 0, 0, false
	}
	return start, 1, true
}

func finalizeCounts(file *domain.FileChange) {
	for _, chunk := range file.Chunks {
		for _, change := range chunk.Changes {
			switch change.Kind {
			case domain.LineAdd:
				file.Insertions++
			case domain.LineDelete:
				file.Deletions++
			}
		}
	}
	file.LinesChanged = file.Insertions + file.Deletions
}
