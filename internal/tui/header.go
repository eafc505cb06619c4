package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/veda/pkg/models"
)

// Header renders the title bar with session-wide switches.
type Header struct {
	width int

	titleStyle lipgloss.Style
	onStyle    lipgloss.Style
	offStyle   lipgloss.Style
	dimStyle   lipgloss.Style
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{
		width: 80,

		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#45B7D1")).
			Bold(true),
		onStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true),
		offStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true),
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header for snap.
func (h *Header) View(snap models.SessionView) string {
	left := h.titleStyle.Render("VEDA") + h.dimStyle.Render(" session "+snap.SessionID)

	right := h.badge("auto", snap.AutoMode) + "  " + h.badge("coord", snap.CoordinationEnabled)
	if snap.PendingCoordinations > 0 {
		right = h.dimStyle.Render(fmt.Sprintf("coordinating %d  ", snap.PendingCoordinations)) + right
	}

	gap := h.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + lipgloss.NewStyle().Width(gap).Render("") + right
}

func (h *Header) badge(label string, on bool) string {
	if on {
		return h.onStyle.Render("● " + label)
	}
	return h.offStyle.Render("○ " + label)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 1
}
