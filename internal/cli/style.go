package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentColor  = lipgloss.Color("#5FAFAF")
	subtleColor  = lipgloss.Color("#666666")
	successColor = lipgloss.Color("#87AF87")
	errorColor   = lipgloss.Color("#AF5F5F")
)

// palette 按输出端探测颜色能力，非终端输出为纯文本
type palette struct {
	title   lipgloss.Style
	subtle  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		title:   r.NewStyle().Bold(true).Foreground(accentColor),
		subtle:  r.NewStyle().Foreground(subtleColor),
		success: r.NewStyle().Foreground(successColor),
		failure: r.NewStyle().Foreground(errorColor),
	}
}
