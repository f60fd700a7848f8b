package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// palette wraps text in ANSI colors when enabled.
type palette bool

func (p palette) paint(code, text string) string {
	if !p {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

func (p palette) green(s string) string  { return p.paint("32", s) }
func (p palette) yellow(s string) string { return p.paint("33", s) }
func (p palette) bold(s string) string   { return p.paint("1", s) }

const indent = "  "

// gateLine renders one gate row: name, badge, and the reason when closed.
func gateLine(p palette, name string, open bool, detail string) string {
	badge := p.green("open")
	if !open {
		badge = p.yellow("blocked")
	}
	line := fmt.Sprintf("%s%-28s %s", indent, name, badge)
	if !open && detail != "" {
		line += " (" + detail + ")"
	}
	return line
}

// paletteFor enables colors only for interactive terminals without NO_COLOR.
func paletteFor(w io.Writer) palette {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return palette(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
