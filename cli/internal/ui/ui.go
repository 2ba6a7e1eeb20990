// Package ui renders command output: styled status lines, tables, SQL
// previews and markdown.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	successColor   = lipgloss.Color("#22C55E")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	infoColor      = lipgloss.Color("#38BDF8")
	secondaryColor = lipgloss.Color("#6C757D")

	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(infoColor)
	dimStyle     = lipgloss.NewStyle().Foreground(secondaryColor)

	sqlColor = color.New(color.FgCyan)
)

// Success prints a success message.
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render("✓ " + fmt.Sprintf(format, args...)))
}

// Error prints an error message to stderr.
func Error(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message.
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("⚠ " + fmt.Sprintf(format, args...)))
}

// Info prints an informational message.
func Info(format string, args ...interface{}) {
	fmt.Println(infoStyle.Render(fmt.Sprintf(format, args...)))
}

// Dim prints a secondary message.
func Dim(format string, args ...interface{}) {
	fmt.Println(dimStyle.Render(fmt.Sprintf(format, args...)))
}

// SQL prints the statement that was (or will be) executed, framed so it
// stands apart from status output.
func SQL(sqlText string) {
	rule := dimStyle.Render(strings.Repeat("─", 48))
	fmt.Println(rule)
	sqlColor.Println(strings.TrimRight(sqlText, "\n"))
	fmt.Println(rule)
}

// Table renders rows with a header via pterm.
func Table(headers []string, rows [][]string) {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// Markdown renders markdown to the terminal. Falls back to the raw text when
// the renderer cannot be built (e.g. no TTY profile).
func Markdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Println(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Println(md)
		return
	}
	fmt.Print(out)
}
