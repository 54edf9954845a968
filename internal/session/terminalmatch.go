package session

import "github.com/tuzig/vt10x"

// terminalRenderCols/Rows size the headless vt10x terminal used to render
// raw PTY bytes before prompt matching. vt10x has no scrollback of its
// own, so the grid is sized tall enough to hold a full confirmation-run
// window without the early prompts scrolling off — the same tradeoff the
// teacher's StatusTracker makes by sizing its own vt10x terminal to the
// session's actual PTY dimensions (here sized generously instead, since
// this render is a one-shot snapshot rather than a live display).
const (
	terminalRenderCols = 200
	terminalRenderRows = 4000
)

// RenderTerminalText feeds raw PTY buffer bytes through a headless vt10x
// terminal and returns the rendered plain-text content, tolerant of ANSI
// control sequences and wrapped lines the way raw byte matching would not
// be (spec.md §4.6b, grounded on the teacher's StatusTracker.Write +
// extractTerminalContent in internal/agentctl/server/process/status_tracker.go).
func RenderTerminalText(raw []byte) string {
	term := vt10x.New(vt10x.WithSize(terminalRenderCols, terminalRenderRows))
	_, _ = term.Write(raw)

	runes := make([]rune, 0, terminalRenderCols*terminalRenderRows)
	for row := 0; row < terminalRenderRows; row++ {
		for col := 0; col < terminalRenderCols; col++ {
			g := term.Cell(col, row)
			if g.Char == 0 {
				runes = append(runes, ' ')
				continue
			}
			runes = append(runes, g.Char)
		}
		runes = append(runes, '\n')
	}
	return string(runes)
}
