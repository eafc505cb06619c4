package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/veda/pkg/models"
)

// Footer renders the status line and keyboard hints.
type Footer struct {
	message string
	isError bool
	width   int

	stateStyle     lipgloss.Style
	errorStyle     lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		stateStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		separatorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetMessage sets the status message.
func (f *Footer) SetMessage(message string, isError bool) {
	f.message = message
	f.isError = isError
}

// Message returns the current status message.
func (f *Footer) Message() string {
	return f.message
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// View renders the footer for the focused instance, which may be nil.
func (f *Footer) View(focused *models.InstanceView) string {
	sep := f.separatorStyle.Render(" │ ")

	left := f.hintStyle.Render("no instance")
	if focused != nil {
		left = f.stateStyle.Render(fmt.Sprintf("%s: %s", focused.Name, focused.State.Label()))
		if focused.WorkingDirectory != "" {
			left += f.hintStyle.Render("  " + focused.WorkingDirectory)
		}
	}

	if f.message != "" {
		if f.isError {
			left += sep + f.errorStyle.Render(f.message)
		} else {
			left += sep + f.hintStyle.Render(f.message)
		}
	}

	line := left + sep + f.keyboardHints()
	if f.width > 0 {
		return lipgloss.NewStyle().MaxWidth(f.width).Render(line)
	}
	return line
}

func (f *Footer) keyboardHints() string {
	return f.hintStyle.Render("tab switch │ ^N new │ ^W close │ ^A auto │ ^T coord │ pgup/pgdn scroll │ ^C quit")
}

// Height returns the footer height in lines.
func (f *Footer) Height() int {
	return 1
}
