package tui

// LayoutManager calculates the transcript area from the terminal size.
type LayoutManager struct {
	// totalWidth is the terminal width.
	totalWidth int
	// totalHeight is the terminal height.
	totalHeight int
	// chromeHeight is the height taken by header, tabs, footer and input.
	chromeHeight int
}

// NewLayoutManager creates a new LayoutManager with the given terminal
// dimensions and fixed chrome height.
func NewLayoutManager(width, height, chrome int) *LayoutManager {
	return &LayoutManager{
		totalWidth:   width,
		totalHeight:  height,
		chromeHeight: chrome,
	}
}

// SetSize updates the terminal dimensions.
func (l *LayoutManager) SetSize(width, height int) {
	l.totalWidth = width
	l.totalHeight = height
}

// Transcript returns the width and height available to the transcript.
func (l *LayoutManager) Transcript() (width, height int) {
	height = l.totalHeight - l.chromeHeight
	if height < 1 {
		height = 1
	}
	width = l.totalWidth
	if width < 20 {
		width = 20
	}
	return width, height
}

// TotalWidth returns the current terminal width.
func (l *LayoutManager) TotalWidth() int {
	return l.totalWidth
}
