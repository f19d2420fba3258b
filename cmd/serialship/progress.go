package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/bft-labs/serialship/pkg/serialship"
)

const barWidth = 30

// progress draws a single-line bar per file on an interactive stderr.
// On a pipe or file it stays silent and the log carries the detail.
type progress struct {
	serialship.BaseEventHandler

	mu      sync.Mutex
	out     io.Writer
	enabled bool
	cols    int
	drawn   bool
}

func newProgress(f *os.File) *progress {
	p := &progress{out: f, cols: 80}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		p.enabled = true
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			p.cols = w
		}
	}
	return p
}

func (p *progress) OnFileStart(e serialship.FileStartEvent) {
	p.render(e.Path, 0, uint64(e.Size))
}

func (p *progress) OnProgress(e serialship.ProgressEvent) {
	p.render(e.Path, e.Done, e.Total)
}

func (p *progress) OnFileDone(serialship.FileDoneEvent) {
	p.finish()
}

func (p *progress) render(path string, done, total uint64) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, "\r"+formatBar(path, done, total, p.cols))
	p.drawn = true
}

// finish ends the current bar line, if one is on screen.
func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

// formatBar renders "name [=====>    ]  42% 1.2 KiB/2.9 KiB" padded or
// truncated to one column short of cols so the cursor never wraps.
func formatBar(path string, done, total uint64, cols int) string {
	pct := 100.0
	if total > 0 {
		if done > total {
			done = total
		}
		pct = float64(done) * 100 / float64(total)
	}

	filled := int(pct / 100 * barWidth)
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}
	tail := fmt.Sprintf(" [%s] %3.0f%% %s/%s", bar, pct, humanBytes(done), humanBytes(total))

	nameWidth := cols - len(tail) - 1
	if nameWidth < 8 {
		nameWidth = 8
	}
	name := path
	if len(name) > nameWidth {
		name = "..." + name[len(name)-nameWidth+3:]
	}
	return fmt.Sprintf("%-*s%s", nameWidth, name, tail)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
