// Package diff parses unified diff text into structured per-file changes
// with per-line records.
//
// The parser is a small state machine over the diff text: file boundaries
// ("diff --git"), file header lines (rename markers, old/new paths), and
// hunks ("@@ -old[,n] +new[,n] @@"). Added lines are recorded at the running
// new-side line counter, deleted lines at the running old-side counter;
// context lines advance both without producing a record. Malformed hunk
// headers discard the offending chunk and parsing resumes at the next
// recognizable boundary.
package diff
