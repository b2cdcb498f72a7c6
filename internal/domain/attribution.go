package domain

// ResolutionMethod records how a version string was mapped to a commit.
type ResolutionMethod string

const (
	ResolvedExactTag    ResolutionMethod = "exact_tag"
	ResolvedPrefixedTag ResolutionMethod = "prefixed_tag"
	ResolvedBranch      ResolutionMethod = "branch"
	ResolvedRef         ResolutionMethod = "ref"
	ResolvedNone        ResolutionMethod = "unresolved"
)

// VersionRef is the outcome of resolving a human-readable version string.
// An empty SHA is a valid terminal state: the version simply could not be
// mapped to a commit.
type VersionRef struct {
	Version string           `json:"version"`
	SHA     string           `json:"sha,omitempty"`
	Method  ResolutionMethod `json:"method"`
}

// Resolved reports whether the version was mapped to a commit.
func (v VersionRef) Resolved() bool {
	return v.SHA != ""
}

// AnalysisResult is the attribution outcome for one (issue, affected
// version) pair. An unresolved version or failed analysis carries Error and
// an empty Changes list.
type AnalysisResult struct {
	AffectedVersion    string            `json:"affected_version"`
	AffectedVersionSHA string            `json:"affected_version_sha,omitempty"`
	AffectedVersionURL string            `json:"affected_version_url,omitempty"`
	FixingCommitSHA    string            `json:"fixing_commit_sha,omitempty"`
	FixingCommitURL    string            `json:"fixing_commit_url,omitempty"`
	CheckoutCommand    string            `json:"checkout_command,omitempty"`
	Error              string            `json:"error,omitempty"`
	Changes            []LineAttribution `json:"changes"`
}

// LineAttribution maps one file's fix-commit changes back to the affected
// version. For renames the affected side carries the old path and the fixing
// side the new path.
type LineAttribution struct {
	AffectedVersion AffectedFile `json:"affected_version"`
	FixingCommit    FixingFile   `json:"fixing_commit"`
	IsRename        bool         `json:"is_rename,omitempty"`
	OldPath         string       `json:"old_path,omitempty"`
	NewPath         string       `json:"new_path,omitempty"`
}

// AffectedFile lists the line numbers in the affected version judged to be
// touched by the fix.
type AffectedFile struct {
	Filename      string `json:"filename"`
	ModifiedLines []int  `json:"modified_lines"`
}

// FixingFile lists the fix-commit line numbers that could not be matched
// back to the affected version.
type FixingFile struct {
	Filename          string `json:"filename"`
	UnidentifiedLines []int  `json:"unidentified_lines"`
}

// IssueAttribution is the attribute-stage record for one issue.
type IssueAttribution struct {
	Issue           Issue            `json:"issue"`
	AnalysisResults []AnalysisResult `json:"analysis_results"`
}

// ProjectAttributions is the attribute-stage artifact: project name ->
// issue key -> attribution record.
type ProjectAttributions map[string]map[string]IssueAttribution
