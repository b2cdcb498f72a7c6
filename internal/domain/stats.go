package domain

// ProjectSummary is one row of the per-project dataset summary.
type ProjectSummary struct {
	Project           string
	TotalIssues       int
	IssuesWithCommits int
	TotalCommits      int
	AvgCommits        float64
	TopStatus         string
	TopPriority       string
}

// VersionStat reports how many attributed issues name an affected version.
type VersionStat struct {
	Project    string
	Version    string
	IssueCount int
	Percentage float64
	SampleKeys []string
}
