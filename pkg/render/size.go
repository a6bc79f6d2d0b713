package render

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const (
	fallbackWidth  = 80
	fallbackHeight = 24
)

// size returns the drawing area: pinned dimensions if set, else the
// terminal window size when writing to one, else 80x24.
func (r *Renderer) size() (width, height int) {
	if r.width > 0 && r.height > 0 {
		return r.width, r.height
	}
	if w, h, ok := winsize(r.w); ok {
		return w, h
	}
	return fallbackWidth, fallbackHeight
}

func winsize(w io.Writer) (width, height int, ok bool) {
	f, isFile := w.(*os.File)
	if !isFile {
		return 0, 0, false
	}
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 || ws.Row == 0 {
		return 0, 0, false
	}
	return int(ws.Col), int(ws.Row), true
}
