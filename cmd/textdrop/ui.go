package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// ui prints one-line status messages, coloured unless disabled.
type ui struct {
	out io.Writer
}

func (u ui) line(attr color.Attribute, mark, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	color.New(attr).Fprintf(u.out, "%s %s\n", mark, msg)
}

func (u ui) Success(format string, args ...any) { u.line(color.FgGreen, "✓", format, args...) }
func (u ui) Warning(format string, args ...any) { u.line(color.FgYellow, "⚠", format, args...) }
func (u ui) Error(format string, args ...any) { u.line(color.FgRed, "✗", format, args...) }
func (u ui) Info(format string, args ...any) { u.line(color.FgCyan, "ℹ", format, args...) }
