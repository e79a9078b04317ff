package report

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	flaggedStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#FF6B6B"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
)

// Render draws one table with a rounded border under its title.
func Render(t Table) string {
	flagCol := -1
	for i, h := range t.Header {
		if h == "outlier" {
			flagCol = i
		}
	}
	rows := t.Rows

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(t.Header...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if flagCol >= 0 && row >= 0 && row < len(rows) && rows[row][flagCol] == "true" {
				return flaggedStyle
			}
			return cellStyle
		})

	return titleStyle.Render(t.Title) + "\n" + tbl.String()
}

// WriteText renders every table to w, separated by blank lines.
func WriteText(w io.Writer, tables []Table) error {
	parts := make([]string, len(tables))
	for i, t := range tables {
		parts[i] = Render(t)
	}
	_, err := io.WriteString(w, strings.Join(parts, "\n\n")+"\n")
	return err
}
