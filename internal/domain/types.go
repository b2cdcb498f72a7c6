package domain

// Change kinds for a file within a commit.
const (
	ChangeAdd    = "ADD"
	ChangeDelete = "DELETE"
	ChangeRename = "RENAME"
	ChangeModify = "MODIFY"
)

// Line kinds within a chunk.
const (
	LineAdd    = "ADD"
	LineDelete = "DELETE"
)

// Commit is an immutable snapshot of one commit extracted from history.
type Commit struct {
	SHA           string        `json:"sha"`
	FullSHA       string        `json:"full_sha"`
	NumParents    int           `json:"num_parents"`
	ParentFullSHA string        `json:"parent_full_sha"`
	Author        string        `json:"author"`
	AuthorEmail   string        `json:"author_email"`
	Date          string        `json:"date"`
	Message       string        `json:"message"`
	Branch        string        `json:"branch"`
	URL           string        `json:"github_url"`
	FilesChanged  FileChangeSet `json:"files_changed"`
}

// FileChangeSet aggregates the per-file changes of a single commit.
// Files are ordered by LinesChanged descending.
type FileChangeSet struct {
	TotalFiles      int          `json:"total_files"`
	TotalInsertions int          `json:"total_insertions"`
	TotalDeletions  int          `json:"total_deletions"`
	Files           []FileChange `json:"files"`
}

// FileChange captures the change to a single file. A RENAME always carries
// both OldPath and Path.
type FileChange struct {
	Path         string  `json:"path"`
	Kind         string  `json:"change_type"`
	OldPath      string  `json:"old_path,omitempty"`
	Insertions   int     `json:"insertions"`
	Deletions    int     `json:"deletions"`
	LinesChanged int     `json:"lines_changed"`
	Chunks       []Chunk `json:"chunks,omitempty"`
}

// Chunk is one contiguous hunk of a unified diff.
type Chunk struct {
	OldStart int          `json:"old_start"`
	OldCount int          `json:"old_count"`
	NewStart int          `json:"new_start"`
	NewCount int          `json:"new_count"`
	Changes  []LineChange `json:"changes"`
}

// LineChange is a single added or deleted line. The line number is in the
// coordinate space where the line was observed: old-side for DELETE,
// new-side for ADD. Content carries the literal text with the +/- prefix
// stripped.
type LineChange struct {
	LineNumber int    `json:"line_number"`
	Kind       string `json:"type"`
	Content    string `json:"content"`
}
