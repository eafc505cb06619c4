package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/veda/pkg/models"
)

// TranscriptView shows the focused instance's conversation in a scrollable
// viewport. It follows new output until the user scrolls up.
type TranscriptView struct {
	viewport viewport.Model
	// follow keeps the viewport pinned to the bottom.
	follow bool
	// last is the rendered content, to skip redundant SetContent calls.
	last string
	// instance is the id of the instance currently shown.
	instance string

	senderStyles map[models.Sender]lipgloss.Style
	thinkStyle   lipgloss.Style
}

// NewTranscriptView creates a TranscriptView.
func NewTranscriptView() *TranscriptView {
	return &TranscriptView{
		viewport: viewport.New(80, 20),
		follow:   true,
		senderStyles: map[models.Sender]lipgloss.Style{
			models.SenderUser:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
			models.SenderAssistant: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
			models.SenderSystem:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			models.SenderAnalyzer:  lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true),
			models.SenderTool:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		},
		thinkStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
	}
}

// SetSize sets the viewport dimensions.
func (v *TranscriptView) SetSize(width, height int) {
	v.viewport.Width = width
	v.viewport.Height = height
	v.last = ""
}

// SetInstance replaces the displayed transcript. Switching instances
// resets scrolling to follow mode.
func (v *TranscriptView) SetInstance(inst *models.InstanceView) {
	if inst == nil {
		v.instance = ""
		v.set("")
		return
	}
	if inst.ID != v.instance {
		v.instance = inst.ID
		v.follow = true
	}
	v.set(v.render(inst.Transcript))
}

func (v *TranscriptView) set(content string) {
	if content == v.last {
		return
	}
	v.last = content
	v.viewport.SetContent(content)
	if v.follow {
		v.viewport.GotoBottom()
	}
}

// Update handles scrolling keys.
func (v *TranscriptView) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	v.follow = v.viewport.AtBottom()
	return cmd
}

// View renders the viewport.
func (v *TranscriptView) View() string {
	return v.viewport.View()
}

func (v *TranscriptView) render(msgs []models.Message) string {
	width := v.viewport.Width
	if width < 10 {
		width = 10
	}
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		if m.IsThinking {
			if m.IsCollapsed {
				b.WriteString(v.thinkStyle.Render("▸ thinking..."))
			} else {
				b.WriteString(wrap.Inherit(v.thinkStyle).Render(m.Content))
			}
			b.WriteString("\n")
			continue
		}
		label := senderLabel(m.Sender)
		b.WriteString(v.style(m.Sender).Render(label) + " " + m.Timestamp.Format("15:04:05") + "\n")
		b.WriteString(wrap.Render(m.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func (v *TranscriptView) style(s models.Sender) lipgloss.Style {
	if st, ok := v.senderStyles[s]; ok {
		return st
	}
	return lipgloss.NewStyle()
}

func senderLabel(s models.Sender) string {
	switch s {
	case models.SenderUser:
		return "You"
	case models.SenderAssistant:
		return "Claude"
	case models.SenderAnalyzer:
		return "Analyzer"
	case models.SenderTool:
		return "Tool"
	default:
		return "System"
	}
}
