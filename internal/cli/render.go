package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}

// swatch renders a two-cell block in c followed by its hex code.
func swatch(c pixel.Color) string {
	block := lipgloss.NewStyle().Background(lipgloss.Color(c.Hex())).Render("  ")
	return block + " " + c.Hex()
}

func verdict(ok bool, yes, no string) string {
	if ok {
		return okStyle.Render(yes)
	}
	return failStyle.Render(no)
}

func printSection(w io.Writer, title string, lines ...string) {
	fmt.Fprintln(w, titleStyle.Render(title))
	if len(lines) > 0 {
		fmt.Fprintln(w, strings.Join(lines, "\n"))
	}
}
