// Package progress renders scan progress: a redrawn bar on a terminal,
// otherwise one log line per tenth of the work.
package progress

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bar implements scan.Progress. Each Start begins a new bar.
type Bar struct {
	out    io.Writer
	tty    bool
	logger *log.Logger
	width  int

	total int
	n     int
	shown int // permille on a tty, decile otherwise
}

// New draws on out when it is a terminal and logs through logger otherwise.
func New(out io.Writer, logger *log.Logger) *Bar {
	return &Bar{out: out, tty: IsTerminal(out), logger: logger, width: 30}
}

func (b *Bar) Start(total int) {
	b.total, b.n, b.shown = total, 0, -1
	b.render()
}

func (b *Bar) Add(n int) {
	if n <= 0 {
		return
	}
	b.n += n
	if b.n > b.total {
		b.n = b.total
	}
	b.render()
}

func (b *Bar) Done() {
	if b.tty && b.total > 0 {
		fmt.Fprintln(b.out)
	}
	b.total = 0
}

func (b *Bar) fraction() float64 {
	if b.total <= 0 {
		return 1
	}
	return float64(b.n) / float64(b.total)
}

func (b *Bar) render() {
	if b.total <= 0 {
		return
	}
	f := b.fraction()
	if b.tty {
		pm := int(f * 1000)
		if pm == b.shown {
			return
		}
		b.shown = pm
		fill := int(f * float64(b.width))
		fmt.Fprintf(b.out, "\r%6.2f%% |%s%s|", f*100, strings.Repeat("█", fill), strings.Repeat(" ", b.width-fill))
		return
	}
	d := int(f * 10)
	if d == b.shown {
		return
	}
	b.shown = d
	if b.logger != nil {
		b.logger.Printf("progress %d%%", d*10)
	}
}
