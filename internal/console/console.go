// Package console carries the diagnostic output of compilation boundaries.
// Each line is tagged with the job it belongs to, so output from concurrent
// compilations never gets attributed to the wrong job.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
)

// Line is one line of diagnostic output produced while compiling a job.
type Line struct {
	JobID string `msgpack:"job_id" json:"job_id"`
	Text  string `msgpack:"text" json:"text"`
}

func (l Line) String() string {
	return fmt.Sprintf("[%s] %s", l.JobID, l.Text)
}

// Sink receives console lines.
type Sink interface {
	Write(l Line)
}

// Printer renders lines on a terminal: the job tag in yellow followed by
// the text in green. It is safe for concurrent use.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Write prints a single line.
func (p *Printer) Write(l Line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s%s\n", color.Yellow.Sprintf("[%s] ", l.JobID), color.Green.Sprint(l.Text))
}

// Pump delivers every line received on lines to all sinks, in order, until
// lines is closed or ctx is done.
func Pump(ctx context.Context, lines <-chan Line, sinks ...Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			for _, s := range sinks {
				s.Write(l)
			}
		}
	}
}
