package domain

// Issue is a defect report imported from a tracker export or the GitHub API.
type Issue struct {
	Key         string       `json:"key"`
	ID          string       `json:"id,omitempty"`
	Type        string       `json:"type,omitempty"`
	Summary     string       `json:"summary"`
	Status      string       `json:"status"`
	ProjectName string       `json:"project_name,omitempty"`
	Priority    string       `json:"priority"`
	Resolution  string       `json:"resolution,omitempty"`
	Created     string       `json:"created"`
	Resolved    string       `json:"resolved,omitempty"`
	Affects     []string     `json:"affects"`
	FixVersions []string     `json:"fix_versions,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Logs        []Attachment `json:"log"`
}

// Attachment is a file attached to an issue. Malformed tracker export cells
// are preserved with only Filename populated.
type Attachment struct {
	Date     string `json:"date,omitempty"`
	Username string `json:"username,omitempty"`
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
}

// IssueCommits pairs an issue with the fix commits found for it.
type IssueCommits struct {
	Issue       Issue    `json:"issue"`
	Commits     []Commit `json:"commits"`
	CommitCount int      `json:"commit_count"`
}

// ProjectIssueCommits is the scan-stage artifact: project name -> issue key
// -> issue with its fix commits.
type ProjectIssueCommits map[string]map[string]IssueCommits
