package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/veda/pkg/models"
)

// TabBar renders one tab per instance and highlights the focused one.
type TabBar struct {
	width int

	activeStyle   lipgloss.Style
	inactiveStyle lipgloss.Style
	barStyle      lipgloss.Style
}

// NewTabBar creates a new TabBar.
func NewTabBar() *TabBar {
	return &TabBar{
		width: 80,

		activeStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Background(lipgloss.Color("236")).
			Padding(0, 2),

		inactiveStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 2),

		barStyle: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),
	}
}

// SetWidth sets the tab bar width.
func (t *TabBar) SetWidth(width int) {
	t.width = width
}

// View renders the tabs for instances with current focused.
func (t *TabBar) View(instances []models.InstanceView, current int) string {
	if len(instances) == 0 {
		return t.barStyle.Render(t.inactiveStyle.Render("no instances"))
	}

	rendered := make([]string, 0, len(instances))
	for i, inst := range instances {
		label := stateIcon(inst.State) + " " + inst.Name
		if i == current {
			rendered = append(rendered, t.activeStyle.Render(label))
		} else {
			rendered = append(rendered, t.inactiveStyle.Render(label))
		}
	}
	return t.barStyle.MaxWidth(t.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
}

// Height returns the tab bar height including its border.
func (t *TabBar) Height() int {
	return 2
}

// stateIcon returns a one-character marker for state.
func stateIcon(state models.ActivityState) string {
	switch state {
	case models.StateWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("◐")
	case models.StateStallCheckPending:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("◌")
	case models.StateCoordinating:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Render("◆")
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
	}
}
