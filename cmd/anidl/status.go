package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"anidl/internal/core"
)

const redrawInterval = 200 * time.Millisecond

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(w)
}

// statusPrinter shows run progress. On a terminal it redraws the board as a
// table in place; otherwise it prints one line per state change.
type statusPrinter struct {
	out      io.Writer
	board    *core.Board
	live     bool
	color    bool
	drawn    int
	lastDraw time.Time
	lastLine map[string]string
}

func newStatusPrinter(out io.Writer, board *core.Board, live bool) *statusPrinter {
	return &statusPrinter{
		out:      out,
		board:    board,
		live:     live,
		color:    live && shouldColorize(out),
		lastLine: make(map[string]string),
	}
}

func (p *statusPrinter) handle(ev core.StatusEvent) {
	p.board.Apply(ev)
	if p.live {
		if ev.Kind == core.EventProgress && time.Since(p.lastDraw) < redrawInterval {
			return
		}
		p.redraw()
		return
	}
	p.printLine(ev)
}

// printLine drops percentage updates so piped output stays readable.
func (p *statusPrinter) printLine(ev core.StatusEvent) {
	if ev.Kind == core.EventProgress && strings.HasSuffix(ev.Message, "%") {
		return
	}
	if ev.Series == "" {
		fmt.Fprintln(p.out, ev.Message)
		return
	}
	line := fmt.Sprintf("[%s] %s", ev.Series, describeEvent(ev))
	if p.lastLine[ev.Series] == line {
		return
	}
	p.lastLine[ev.Series] = line
	fmt.Fprintln(p.out, line)
}

func describeEvent(ev core.StatusEvent) string {
	switch ev.Kind {
	case core.EventFinished:
		return "Done: " + ev.Path
	case core.EventSkipped:
		return "Skipped: " + ev.Message
	case core.EventError:
		return "Error: " + ev.Message
	}
	return ev.Message
}

func (p *statusPrinter) redraw() {
	rendered := p.boardTable()
	if p.drawn > 0 {
		fmt.Fprintf(p.out, "\x1b[%dA\x1b[J", p.drawn)
	}
	fmt.Fprintln(p.out, rendered)
	p.drawn = strings.Count(rendered, "\n") + 1
	p.lastDraw = time.Now()
}

func (p *statusPrinter) boardTable() string {
	entries := p.board.Snapshot()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		message := e.Message
		if e.State == core.BoardDone && e.Path != "" {
			message = e.Path
		}
		rows = append(rows, []string{e.Series, p.colorState(e.State), message})
	}
	return renderTable([]string{"Series", "State", "Status"}, rows, nil)
}

func (p *statusPrinter) colorState(state core.BoardState) string {
	label := string(state)
	if !p.color {
		return label
	}
	switch state {
	case core.BoardDone:
		return text.FgGreen.Sprint(label)
	case core.BoardFailed:
		return text.FgRed.Sprint(label)
	case core.BoardInterrupted:
		return text.FgYellow.Sprint(label)
	case core.BoardSkipped:
		return text.FgHiBlack.Sprint(label)
	case core.BoardProgress:
		return text.FgCyan.Sprint(label)
	}
	return label
}

// finish draws the final board and any run-level notices.
func (p *statusPrinter) finish() {
	if !p.live {
		return
	}
	p.redraw()
	for _, notice := range p.board.Notices() {
		fmt.Fprintln(p.out, notice)
	}
}

func renderSummary(summary core.RunSummary) string {
	rows := make([][]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		episode := "-"
		if r.Episode > 0 {
			episode = strconv.Itoa(r.Episode)
		}
		detail := r.Reason
		if detail == "" && r.Path != "" {
			detail = r.Path
		}
		rows = append(rows, []string{
			r.Name,
			episode,
			r.Outcome,
			formatSeconds(r.Download),
			formatSeconds(r.Conversion),
			detail,
		})
	}
	sortRows(rows)
	return renderTable(
		[]string{"Series", "Episode", "Outcome", "Download", "Conversion", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func formatSeconds(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}

func sortRows(rows [][]string) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
}
