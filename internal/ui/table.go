package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// TableView renders t with lipgloss for the full-screen chat.
func TableView(t *Table) string {
	if len(t.Rows) == 0 {
		return MutedStyle.Render(t.Empty)
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	if t.Title == "" {
		return tbl.Render()
	}
	return TitleStyle.Render(t.Title) + "\n" + tbl.Render()
}
