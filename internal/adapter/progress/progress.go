// Package progress renders terminal progress bars for long pipeline stages
// and falls back to a silent reporter when output is not a terminal.
package progress

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter receives coarse progress updates: a description per unit of work,
// one Add per step, and a Finish when the stage ends so spinners clear the
// line. Pipeline stages declare this same shape locally.
type Reporter interface {
	Describe(text string)
	Add(n int) error
	Finish() error
}

var (
	_ Reporter = (*progressbar.ProgressBar)(nil)
	_ Reporter = Silent{}
)

// New returns a terminal progress bar for the given total, or a silent
// reporter when stdout is not a TTY (CI, piped output). Pass -1 for an
// unbounded spinner.
func New(total int) Reporter {
	if !IsOutputTerminal() {
		return Silent{}
	}
	return NewBar(total)
}

// NewBar builds the progress bar shared by all stages.
func NewBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionThrottle(time.Second),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{Saucer: "#", SaucerPadding: " ", BarStart: "|", BarEnd: "|"}),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Silent is a no-op Reporter for non-interactive runs.
type Silent struct{}

func (Silent) Describe(string) {}

func (Silent) Add(int) error { return nil }

func (Silent) Finish() error { return nil }

// IsOutputTerminal reports whether stdout is a TTY, meaning progress bars
// would be displayed to a user rather than corrupting piped output.
func IsOutputTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
