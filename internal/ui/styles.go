// Package ui renders CLI output with lipgloss.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorPass   = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#C77800", Dark: "#FFB000"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#D0021B", Dark: "#FF5F56"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#DBDBDB", Dark: "#383838"}

	accentStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// RenderRanking draws a 0-4 ranking as filled and empty stars.
func RenderRanking(ranking int) string {
	ranking = min(max(ranking, 0), 4)
	return warnStyle.Render(strings.Repeat("★", ranking)) + mutedStyle.Render(strings.Repeat("☆", 4-ranking))
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
