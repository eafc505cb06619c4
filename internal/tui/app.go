package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/veda/pkg/models"
)

// Controller is the orchestrator surface the App drives. Reads go through
// Snapshot only; every other method queues an action.
type Controller interface {
	Snapshot() models.SessionView
	Submit(text string) bool
	NewInstance() bool
	CloseCurrent() bool
	ToggleAutoMode() bool
	ToggleCoordination() bool
	FocusNext()
	FocusPrev()
}

// DefaultRefreshRate is how often the App re-reads the snapshot.
const DefaultRefreshRate = 100 * time.Millisecond

// refreshMsg triggers a snapshot refresh.
type refreshMsg time.Time

// EventMsg is an orchestrator event shown in the status line.
type EventMsg struct {
	Type      string
	Instance  string
	Message   string
	Error     string
	Timestamp time.Time
}

// SessionDoneMsg signals that the orchestrator has stopped.
type SessionDoneMsg struct {
	Err error
}

// App is the bubbletea model for a veda session.
type App struct {
	ctrl    Controller
	refresh time.Duration

	header     *Header
	tabs       *TabBar
	transcript *TranscriptView
	footer     *Footer
	input      *InputField
	layout     *LayoutManager

	snap     models.SessionView
	width    int
	height   int
	quitting bool
	doneErr  error
}

// NewApp creates an App reading from ctrl every refresh interval.
func NewApp(ctrl Controller, refresh time.Duration) *App {
	if refresh <= 0 {
		refresh = DefaultRefreshRate
	}
	a := &App{
		ctrl:       ctrl,
		refresh:    refresh,
		header:     NewHeader(),
		tabs:       NewTabBar(),
		transcript: NewTranscriptView(),
		footer:     NewFooter(),
		input:      NewInputField(),
	}
	chrome := a.header.Height() + a.tabs.Height() + a.footer.Height() + a.input.Height()
	a.layout = NewLayoutManager(80, 24, chrome)
	a.updateSizes()
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	a.sync()
	return tea.Batch(a.input.Focus(), a.tick())
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case tea.MouseMsg:
		return a, a.transcript.Update(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout.SetSize(msg.Width, msg.Height)
		a.updateSizes()
		a.sync()
		return a, nil

	case refreshMsg:
		a.sync()
		return a, a.tick()

	case PromptSubmittedMsg:
		if !a.ctrl.Submit(msg.Text) {
			a.footer.SetMessage("input queue full, message dropped", true)
		}
		return a, nil

	case EventMsg:
		text := msg.Message
		if msg.Instance != "" {
			text = msg.Instance + ": " + text
		}
		if msg.Error != "" {
			a.footer.SetMessage(text+" ("+msg.Error+")", true)
		} else if text != "" {
			a.footer.SetMessage(text, false)
		}
		return a, nil

	case SessionDoneMsg:
		a.doneErr = msg.Err
		a.quitting = true
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		a.quitting = true
		return tea.Quit
	case "tab", "ctrl+right":
		a.ctrl.FocusNext()
		a.sync()
		return nil
	case "shift+tab", "ctrl+left":
		a.ctrl.FocusPrev()
		a.sync()
		return nil
	case "ctrl+n":
		a.ctrl.NewInstance()
		return nil
	case "ctrl+w":
		a.ctrl.CloseCurrent()
		return nil
	case "ctrl+a":
		a.ctrl.ToggleAutoMode()
		return nil
	case "ctrl+t":
		a.ctrl.ToggleCoordination()
		return nil
	case "pgup", "pgdown", "up", "down":
		return a.transcript.Update(msg)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return cmd
}

// sync re-reads the snapshot and refreshes the transcript.
func (a *App) sync() {
	a.snap = a.ctrl.Snapshot()
	a.transcript.SetInstance(a.focused())
}

func (a *App) focused() *models.InstanceView {
	if a.snap.Current < 0 || a.snap.Current >= len(a.snap.Instances) {
		return nil
	}
	return &a.snap.Instances[a.snap.Current]
}

func (a *App) updateSizes() {
	w, h := a.layout.Transcript()
	a.header.SetWidth(w)
	a.tabs.SetWidth(w)
	a.footer.SetWidth(w)
	a.input.SetWidth(w)
	a.transcript.SetSize(w, h)
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		a.header.View(a.snap),
		a.tabs.View(a.snap.Instances, a.snap.Current),
		a.transcript.View(),
		a.footer.View(a.focused()),
		a.input.View(),
	)
}

// Err returns the error carried by SessionDoneMsg, if any.
func (a *App) Err() error {
	return a.doneErr
}

// NewProgram creates a bubbletea program for ctrl.
func NewProgram(ctrl Controller, refresh time.Duration) (*tea.Program, *App) {
	app := NewApp(ctrl, refresh)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	return p, app
}
