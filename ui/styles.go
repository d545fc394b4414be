package ui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorOrange = lipgloss.Color("#FFB86C")
	colorWhite  = lipgloss.Color("#F8F8F2")
	colorGray   = lipgloss.Color("#6272A4")
	colorPanel  = lipgloss.Color("#44475A")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle    = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle    = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle     = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(colorGreen)
	helpStyle     = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle      = lipgloss.NewStyle().Foreground(colorGray)
	orangeStyle   = lipgloss.NewStyle().Foreground(colorOrange)
	activeTab     = lipgloss.NewStyle().Bold(true).Foreground(colorWhite).Background(colorPanel).Padding(0, 1)
	inactiveTab   = lipgloss.NewStyle().Foreground(colorGray).Padding(0, 1)
	tableBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorGray)
)

// seriesColors is the palette for top-K process series, in rank order.
var seriesColors = []lipgloss.Color{
	lipgloss.Color("#e74c3c"),
	lipgloss.Color("#2ecc71"),
	lipgloss.Color("#f39c12"),
	lipgloss.Color("#9b59b6"),
	lipgloss.Color("#1abc9c"),
}

func seriesStyle(rank int) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(seriesColors[rank%len(seriesColors)])
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorGray).
		BorderBottom(true).
		Bold(true).
		Foreground(colorCyan)
	s.Selected = s.Selected.
		Foreground(colorWhite).
		Background(colorPanel).
		Bold(false)
	return s
}

func pctStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 80:
		return critStyle
	case pct >= 50:
		return warnStyle
	default:
		return okStyle
	}
}
